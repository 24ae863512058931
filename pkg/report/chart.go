package report

import (
	"bytes"
	"regexp"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
)

const (
	titleColor = "#000000"

	summaryChartID = "summary_chart"
)

var (
	scriptRegex   = regexp.MustCompile(`<script type="text/javascript">(\n|.)*</script>`)
	rendererRegex = regexp.MustCompile(`(echarts\.init\()(.*)(\))`)
)

// generateSummaryChart returns the JS code that draws a bar per summary row.
func generateSummaryChart(title string, labels []string, counts []int) (*string, error) {
	if len(labels) != len(counts) {
		return nil, errors.New("the number of labels does not match the number of values")
	}

	if len(labels) == 0 {
		return nil, nil
	}

	items := make([]opts.BarData, 0, len(counts))
	for _, c := range counts {
		items = append(items, opts.BarData{Value: c})
	}

	chart := charts.NewBar()
	chart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: title,
			Right: "center",
			TitleStyle: &opts.TextStyle{
				Color: titleColor,
			},
		}),
		charts.WithInitializationOpts(opts.Initialization{
			ChartID: summaryChartID,
		}),
	)
	chart.SetXAxis(labels).AddSeries("Rules", items)

	var buffer bytes.Buffer
	if err := chart.Render(&buffer); err != nil {
		return nil, errors.Wrap(err, "couldn't render chart")
	}

	scriptParts := scriptRegex.FindAllString(buffer.String(), -1)
	if len(scriptParts) != 1 {
		return nil, errors.New("couldn't get chart script")
	}

	script := rendererRegex.ReplaceAllString(scriptParts[0], "$1$2, {renderer: \"svg\"}$3")

	return &script, nil
}
