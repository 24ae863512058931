package report

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/edgeops/cfaudit/internal/rules"
)

// fileReport represents the data of a report in JSON or YAML format.
type fileReport struct {
	Title     string `json:"title" yaml:"title"`
	Date      string `json:"date" yaml:"date"`
	Args      string `json:"args,omitempty" yaml:"args,omitempty"`
	KeyColumn string `json:"key_column" yaml:"key_column"`
	Total     int    `json:"total" yaml:"total"`

	Summary []SummaryRow `json:"summary,omitempty" yaml:"summary,omitempty"`
	Groups  []fileGroup  `json:"groups" yaml:"groups"`
}

type fileGroup struct {
	Key   string          `json:"key" yaml:"key"`
	Count int             `json:"count" yaml:"count"`
	Rules []rules.Details `json:"rules" yaml:"rules"`
}

func newFileReport(r *Report) *fileReport {
	out := &fileReport{
		Title:     r.Title,
		Date:      r.GeneratedAt.Format(time.RFC3339),
		Args:      strings.Join(r.Args, " "),
		KeyColumn: r.KeyColumn,
		Total:     r.Total(),
	}

	if r.WithSummary {
		out.Summary = r.Summary()
	}

	for _, g := range r.Groups {
		rulesFound := g.Rules
		if rulesFound == nil {
			rulesFound = []rules.Details{}
		}
		out.Groups = append(out.Groups, fileGroup{Key: g.Key, Count: len(g.Rules), Rules: rulesFound})
	}

	return out
}

// printReportToJson prepares and prints the report in JSON format to the file.
func printReportToJson(r *Report, reportFile string) error {
	return WriteJSON(reportFile, newFileReport(r))
}

// printReportToYaml prepares and prints the report in YAML format to the file.
func printReportToYaml(r *Report, reportFile string) error {
	yamlBytes, err := yaml.Marshal(newFileReport(r))
	if err != nil {
		return errors.Wrap(err, "couldn't dump report to YAML")
	}

	return writeAtomically(reportFile, func(path string) error {
		if err := os.WriteFile(path, yamlBytes, 0o644); err != nil {
			return errors.Wrap(err, "couldn't write report to file")
		}
		return nil
	})
}
