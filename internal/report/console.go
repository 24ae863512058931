package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// Console tables truncate long cells to keep rows on one screen line.
const maxConsoleCellWidth = 60

// Table is a titled console table; analytics commands print their results
// through it as well.
type Table struct {
	Title  string     `json:"title"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Footer []string   `json:"footer,omitempty"`
}

// PrintTable renders t to w.
func PrintTable(w io.Writer, t *Table) error {
	if t.Title != "" {
		fmt.Fprintf(w, "%s:\n", t.Title)
	}

	table := tablewriter.NewWriter(w)
	table.Header(toAny(t.Header)...)

	for _, row := range t.Rows {
		if err := table.Append(row); err != nil {
			return errors.Wrap(err, "couldn't add table row")
		}
	}

	if len(t.Footer) > 0 {
		table.Footer(toAny(t.Footer)...)
	}

	if err := table.Render(); err != nil {
		return errors.Wrap(err, "couldn't render table")
	}

	fmt.Fprintln(w)

	return nil
}

// RenderConsoleReport prints the summary and detail tables in selected format.
func RenderConsoleReport(w io.Writer, r *Report, format string) error {
	switch format {
	case consoleReportTextFormat:
		return printConsoleReportTable(w, r)
	case consoleReportJsonFormat:
		return printConsoleReportJson(w, r)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

func printConsoleReportTable(w io.Writer, r *Report) error {
	summary := &Table{
		Title:  r.Title,
		Header: []string{r.KeyColumn, "Rules Found", "Status"},
		Footer: []string{"Total", fmt.Sprintf("%d", r.Total()), ""},
	}
	for _, s := range r.Summary() {
		summary.Rows = append(summary.Rows, []string{s.Term, fmt.Sprintf("%d", s.Count), s.Status})
	}

	if err := PrintTable(w, summary); err != nil {
		return err
	}

	for _, g := range r.nonEmpty() {
		details := &Table{
			Title:  fmt.Sprintf("%s %q", r.KeyColumn, g.Key),
			Header: []string{"Domain", "Ruleset", "Phase", "Rule ID", "Description", "Action", "Enabled"},
		}
		for _, d := range g.Rules {
			details.Rows = append(details.Rows, []string{
				d.Domain,
				d.RulesetName,
				d.RulesetPhase,
				d.RuleID,
				shorten(d.Description),
				d.Action,
				fmt.Sprintf("%t", d.Enabled),
			})
		}

		if err := PrintTable(w, details); err != nil {
			return err
		}
	}

	return nil
}

func printConsoleReportJson(w io.Writer, r *Report) error {
	jsonBytes, err := json.Marshal(newFileReport(r))
	if err != nil {
		return errors.Wrap(err, "couldn't export report to JSON")
	}

	fmt.Fprintln(w, string(jsonBytes))

	return nil
}

func shorten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncateRunes(s, maxConsoleCellWidth)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
