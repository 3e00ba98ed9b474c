package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/docflow/internal/explode"
	"github.com/odyssey-erp/docflow/internal/reports"
)

const (
	lineageSheet   = "Lineage"
	breakdownSheet = "Breakdown"
	dateFormat     = "yyyy-mm-dd"
)

// WriteLineageXLSX writes the lineage table as a single-sheet workbook.
func WriteLineageXLSX(w io.Writer, report reports.LineageReport) error {
	f, err := newWorkbook(lineageSheet, LineageHeader)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(dateFormat)})
	if err != nil {
		return fmt.Errorf("export: date style: %w", err)
	}
	for i, row := range report.Rows {
		excelRow := i + 2
		cells := lineageCells(row)
		if err := writeSheetRow(f, lineageSheet, excelRow, cells); err != nil {
			return err
		}
		for col, c := range cells {
			if c.date == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(col+1, excelRow)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(lineageSheet, name, name, dateStyle); err != nil {
				return fmt.Errorf("export: style %s: %w", name, err)
			}
		}
	}
	return writeWorkbook(f, w)
}

// WriteBreakdownXLSX writes an order breakdown as a single-sheet workbook.
// Category headers and subtotals are set in bold.
func WriteBreakdownXLSX(w io.Writer, report reports.BreakdownReport) error {
	f, err := newWorkbook(breakdownSheet, BreakdownHeader)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: bold style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(BreakdownHeader))
	if err != nil {
		return err
	}
	for i, row := range report.Rows {
		excelRow := i + 2
		if err := writeSheetRow(f, breakdownSheet, excelRow, breakdownCells(row)); err != nil {
			return err
		}
		if row.Kind() == explode.KindData {
			continue
		}
		from := fmt.Sprintf("A%d", excelRow)
		to := fmt.Sprintf("%s%d", lastCol, excelRow)
		if err := f.SetCellStyle(breakdownSheet, from, to, bold); err != nil {
			return fmt.Errorf("export: style row %d: %w", excelRow, err)
		}
	}
	return writeWorkbook(f, w)
}

func newWorkbook(sheet string, header []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: name sheet: %w", err)
	}
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: header: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: freeze header: %w", err)
	}
	return f, nil
}

func writeSheetRow(f *excelize.File, sheet string, excelRow int, cells []cell) error {
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = cellValue(c)
	}
	start, err := excelize.CoordinatesToCellName(1, excelRow)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("export: row %d: %w", excelRow, err)
	}
	return nil
}

// cellValue maps a cell onto the value excelize stores: numbers as numbers,
// dates as dates, undefined values as blanks.
func cellValue(c cell) any {
	switch {
	case c.date != nil:
		return c.date.Time()
	case c.days != nil:
		return *c.days
	case c.numeric:
		if !c.num.Valid {
			return nil
		}
		d := c.num.Decimal
		if c.places >= 0 {
			d = d.Round(c.places)
		}
		v, _ := d.Float64()
		return v
	case c.text == "":
		return nil
	}
	return c.text
}

func writeWorkbook(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
