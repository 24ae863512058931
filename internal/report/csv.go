package report

import (
	"encoding/csv"
	"os"

	"github.com/pkg/errors"
)

// printReportToCsv writes every record as one row; the grouping key is always
// the first column.
func printReportToCsv(r *Report, reportFile string) error {
	flat := *r
	flat.DetailKey = true

	rows := [][]string{flat.columnNames()}
	for _, g := range r.Groups {
		for i := range g.Rules {
			rows = append(rows, flat.stringRow(g.Key, &g.Rules[i]))
		}
	}

	return writeCSV(reportFile, rows)
}

// WriteTableCSV saves a table with its header and footer rows.
func WriteTableCSV(path string, t *Table) error {
	rows := make([][]string, 0, len(t.Rows)+2)
	rows = append(rows, t.Header)
	rows = append(rows, t.Rows...)
	if len(t.Footer) > 0 {
		rows = append(rows, t.Footer)
	}

	return writeCSV(path, rows)
}

func writeCSV(reportFile string, rows [][]string) error {
	return writeAtomically(reportFile, func(path string) error {
		file, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "couldn't create file")
		}
		defer file.Close()

		w := csv.NewWriter(file)
		if err = w.WriteAll(rows); err != nil {
			return errors.Wrap(err, "couldn't write CSV")
		}

		return file.Close()
	})
}
