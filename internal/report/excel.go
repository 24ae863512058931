package report

import (
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const headerFillColor = "#D9E1F2"

var headerStyle = &excelize.Style{
	Font: &excelize.Font{Bold: true},
	Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFillColor}},
	Border: []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	},
}

// printReportToExcel writes the summary sheet (first, when enabled) and one
// detail sheet per non-empty group.
func printReportToExcel(r *Report, reportFile string) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(headerStyle)
	if err != nil {
		return errors.Wrap(err, "couldn't create header style")
	}

	w := &sheetWriter{file: f, headerStyle: header, first: true}

	if r.WithSummary {
		summaryCols := append([]column(nil), summaryColumns...)
		summaryCols[0].name = r.KeyColumn

		var rows [][]any
		for _, s := range r.Summary() {
			rows = append(rows, []any{s.Term, s.Count, s.Status})
		}

		if err = w.addSheet(SummarySheet, summaryCols, rows); err != nil {
			return err
		}
	}

	names := r.sheetNames()
	for i, g := range r.nonEmpty() {
		rows := make([][]any, 0, len(g.Rules))
		for j := range g.Rules {
			rows = append(rows, r.row(g.Key, &g.Rules[j]))
		}

		if err = w.addSheet(names[i], r.columns(), rows); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)

	return writeAtomically(reportFile, func(path string) error {
		if err := f.SaveAs(path); err != nil {
			return errors.Wrap(err, "couldn't save workbook")
		}
		return nil
	})
}

type sheetWriter struct {
	file        *excelize.File
	headerStyle int
	first       bool
}

func (w *sheetWriter) addSheet(name string, cols []column, rows [][]any) error {
	// A new workbook starts with "Sheet1", which becomes the first sheet.
	if w.first {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return errors.Wrapf(err, "couldn't name sheet %q", name)
		}
		w.first = false
	} else if _, err := w.file.NewSheet(name); err != nil {
		return errors.Wrapf(err, "couldn't create sheet %q", name)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.name

		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err = w.file.SetColWidth(name, colName, colName, c.width); err != nil {
			return errors.Wrapf(err, "couldn't set width of column %s", colName)
		}
	}

	if err := w.file.SetSheetRow(name, "A1", &header); err != nil {
		return errors.Wrapf(err, "couldn't write header of sheet %q", name)
	}

	lastHeaderCell, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	if err = w.file.SetCellStyle(name, "A1", lastHeaderCell, w.headerStyle); err != nil {
		return errors.Wrapf(err, "couldn't style header of sheet %q", name)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = w.file.SetSheetRow(name, cell, &row); err != nil {
			return errors.Wrapf(err, "couldn't write row %d of sheet %q", i+2, name)
		}
	}

	return nil
}
