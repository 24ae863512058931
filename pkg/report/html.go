package report

import (
	"bytes"
	_ "embed"
	"html/template"
	"strings"

	"github.com/pkg/errors"
)

//go:embed report_template.html
var HtmlTemplate string

// HtmlReport represents the data required to render a rule search report page.
type HtmlReport struct {
	Title       string   `json:"title" validate:"required,max=256"`
	GeneratedAt string   `json:"generated_at" validate:"required,datetime=2006-01-02 15:04:05"`
	Version     string   `json:"version" validate:"required,cfaudit_version"`
	Args        []string `json:"args" validate:"max=50,dive,args,max=500"`

	// KeyColumn names the grouping column, e.g. "Search Term".
	KeyColumn string `json:"key_column" validate:"required,max=64"`

	Summary  []*SummaryRow `json:"summary" validate:"dive,required"`
	Sections []*Section    `json:"sections" validate:"dive,required"`

	Chart *template.HTML `json:"-" validate:"-"`
}

type SummaryRow struct {
	Key    string `json:"key" validate:"required"`
	Count  int    `json:"count" validate:"min=0"`
	Status string `json:"status" validate:"required"`
}

// Section is one detail table, the HTML counterpart of a workbook sheet.
type Section struct {
	Key     string     `json:"key" validate:"required"`
	Sheet   string     `json:"sheet" validate:"required,sheet_name"`
	Columns []string   `json:"columns" validate:"required,min=1,dive,required"`
	Rows    [][]string `json:"rows" validate:"dive,required"`
}

// RenderReportToHTML validates the report data and substitutes it into the
// HTML template.
func RenderReportToHTML(reportData *HtmlReport) (*bytes.Buffer, error) {
	if err := ValidateReportData(reportData); err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(reportData.Summary))
	counts := make([]int, 0, len(reportData.Summary))
	for _, row := range reportData.Summary {
		labels = append(labels, row.Key)
		counts = append(counts, row.Count)
	}

	chart, err := generateSummaryChart(reportData.Title, labels, counts)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't generate chart script")
	}

	if chart != nil {
		v := template.HTML(*chart)
		reportData.Chart = &v
	}

	templ := template.Must(
		template.New("report").
			Funcs(template.FuncMap{
				"StringsJoin": strings.Join,
			}).
			Parse(HtmlTemplate))

	var buffer bytes.Buffer

	err = templ.Execute(&buffer, reportData)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't execute template")
	}

	return &buffer, nil
}
