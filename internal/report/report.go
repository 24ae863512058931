package report

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/rules"
)

const (
	maxReportFilenameLength = 249 // 255 (max length) - 5 (".xlsx") - 1 (to be sure)

	TimestampLayout = "20060102_150405"

	consoleReportTextFormat = "text"
	consoleReportJsonFormat = "json"
)

const (
	NoneFormat  = "none"
	ExcelFormat = "xlsx"
	JsonFormat  = "json"
	YamlFormat  = "yaml"
	CsvFormat   = "csv"
	HtmlFormat  = "html"
)

var (
	ReportFormatsSet = map[string]any{
		NoneFormat:  nil,
		ExcelFormat: nil,
		JsonFormat:  nil,
		YamlFormat:  nil,
		CsvFormat:   nil,
		HtmlFormat:  nil,
	}
	ReportFormats = slices.Sorted(maps.Keys(ReportFormatsSet))

	DefaultReportFormats = []string{ExcelFormat}

	ErrEmptyReport = errors.New("no rules found, nothing to export")
)

// Report is the grouped outcome of one rule search run.
type Report struct {
	Title string

	// KeyColumn labels the grouping key, e.g. "Search Term". When
	// DetailKey is set the key is also the first column of every detail row.
	KeyColumn string
	KeyWidth  float64
	DetailKey bool

	Groups      []Group
	WithSummary bool

	GeneratedAt time.Time
	Args        []string
}

// Total returns the number of records across all groups.
func (r *Report) Total() int {
	return total(r.Groups)
}

func (r *Report) Summary() []SummaryRow {
	return Summarize(r.Groups)
}

// nonEmpty returns the groups that get a sheet of their own.
func (r *Report) nonEmpty() []Group {
	var groups []Group
	for _, g := range r.Groups {
		if len(g.Rules) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

// sheetNames assigns a unique sheet name to every non-empty group.
func (r *Report) sheetNames() []string {
	var namer *sheetNamer
	if r.WithSummary {
		namer = newSheetNamer(SummarySheet)
	} else {
		namer = newSheetNamer()
	}

	groups := r.nonEmpty()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = namer.name(g.Key)
	}
	return names
}

type column struct {
	name  string
	width float64
}

var detailColumns = []column{
	{"Domain", 30},
	{"Ruleset Name", 20},
	{"Ruleset Phase", 15},
	{"Rule ID", 20},
	{"Description", 40},
	{"Expression", 50},
	{"Action", 15},
	{"Enabled", 10},
}

var summaryColumns = []column{
	{"", 40},
	{"Rules Found", 15},
	{"Status", 25},
}

func (r *Report) columns() []column {
	if !r.DetailKey {
		return detailColumns
	}

	width := r.KeyWidth
	if width == 0 {
		width = 20
	}

	return append([]column{{r.KeyColumn, width}}, detailColumns...)
}

func (r *Report) columnNames() []string {
	cols := r.columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func (r *Report) row(key string, d *rules.Details) []any {
	row := []any{d.Domain, d.RulesetName, d.RulesetPhase, d.RuleID, d.Description, d.Expression, d.Action, d.Enabled}
	if r.DetailKey {
		row = append([]any{key}, row...)
	}
	return row
}

func (r *Report) stringRow(key string, d *rules.Details) []string {
	values := r.row(key, d)
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprint(v)
	}
	return row
}

// ReportFile returns the path of a report without extension:
// <reportPath>/<baseName>_<timestamp>.
func ReportFile(reportPath, baseName string, t time.Time) string {
	return filepath.Join(reportPath, fmt.Sprintf("%s_%s", baseName, t.Format(TimestampLayout)))
}

// ExportReport saves the report on disk in every requested format and
// returns the written file names. A report without records is not written.
func ExportReport(r *Report, reportFile string, formats []string) (reportFileNames []string, err error) {
	_, reportFileName := filepath.Split(reportFile)
	if len(reportFileName) > maxReportFilenameLength {
		return nil, errors.New("report filename too long")
	}

	if IsNoneReportFormat(formats) {
		return nil, nil
	}

	if r.Total() == 0 {
		return nil, ErrEmptyReport
	}

	for _, format := range formats {
		switch format {
		case ExcelFormat:
			reportFileName = reportFile + ".xlsx"
			err = printReportToExcel(r, reportFileName)

		case JsonFormat:
			reportFileName = reportFile + ".json"
			err = printReportToJson(r, reportFileName)

		case YamlFormat:
			reportFileName = reportFile + ".yaml"
			err = printReportToYaml(r, reportFileName)

		case CsvFormat:
			reportFileName = reportFile + ".csv"
			err = printReportToCsv(r, reportFileName)

		case HtmlFormat:
			reportFileName = reportFile + ".html"
			err = printReportToHtml(r, reportFileName)

		default:
			return reportFileNames, fmt.Errorf("unknown report format: %s", format)
		}

		if err != nil {
			return reportFileNames, err
		}

		reportFileNames = append(reportFileNames, reportFileName)
	}

	return reportFileNames, nil
}

func ValidateReportFormat(formats []string) error {
	if len(formats) == 0 {
		return errors.New("no report format specified")
	}

	// Convert slice to set (map)
	set := make(map[string]any)
	for _, s := range formats {
		if _, ok := ReportFormatsSet[s]; !ok {
			return fmt.Errorf("unknown report format: %s", s)
		}

		set[s] = nil
	}

	// Check for duplicating values
	if len(set) != len(formats) {
		return fmt.Errorf("found duplicated values: %s", strings.Join(formats, ","))
	}

	// Check "none" is present
	_, isNone := set[NoneFormat]

	// Check for conflicts
	if len(set) > 1 && isNone {
		// Delete "none" from the set
		delete(set, NoneFormat)
		// Collect conflicted formats
		conflictedFormats := slices.Sorted(maps.Keys(set))

		return fmt.Errorf("\"none\" conflicts with other formats: %s", strings.Join(conflictedFormats, ","))
	}

	return nil
}

func IsNoneReportFormat(reportFormat []string) bool {
	if len(reportFormat) > 0 && reportFormat[0] == NoneFormat {
		return true
	}

	return false
}
