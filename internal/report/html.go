package report

import (
	"os"

	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/version"
	"github.com/edgeops/cfaudit/pkg/report"
)

const htmlDateLayout = "2006-01-02 15:04:05"

func prepareHTMLReport(r *Report) *report.HtmlReport {
	data := &report.HtmlReport{
		Title:       r.Title,
		GeneratedAt: r.GeneratedAt.Format(htmlDateLayout),
		Version:     version.Version,
		Args:        r.Args,
		KeyColumn:   r.KeyColumn,
	}

	for _, s := range r.Summary() {
		data.Summary = append(data.Summary, &report.SummaryRow{Key: s.Term, Count: s.Count, Status: s.Status})
	}

	names := r.sheetNames()
	for i, g := range r.nonEmpty() {
		section := &report.Section{
			Key:     g.Key,
			Sheet:   names[i],
			Columns: r.columnNames(),
			Rows:    make([][]string, 0, len(g.Rules)),
		}
		for j := range g.Rules {
			section.Rows = append(section.Rows, r.stringRow(g.Key, &g.Rules[j]))
		}
		data.Sections = append(data.Sections, section)
	}

	return data
}

// printReportToHtml renders the report page with a bar chart of the counts.
func printReportToHtml(r *Report, reportFile string) error {
	buffer, err := report.RenderReportToHTML(prepareHTMLReport(r))
	if err != nil {
		return errors.Wrap(err, "couldn't render HTML report")
	}

	return writeAtomically(reportFile, func(path string) error {
		if err := os.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
			return errors.Wrap(err, "couldn't write report to file")
		}
		return nil
	})
}
