// Package export writes a loaded table and its summary to an Excel workbook
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/chemviz/chemviz/pkg/models"
)

const (
	DataSheet    = "Data"
	SummarySheet = "Summary"
)

// Workbook builds a workbook with the table on one sheet and the summary on
// another. A nil summary leaves the summary sheet with just its headings.
func Workbook(table models.Table, summary *models.Summary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add summary sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeTable(f, table, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, summary, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteFile saves the workbook at path
func WriteFile(path string, table models.Table, summary *models.Summary) error {
	f, err := Workbook(table, summary)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, table models.Table, headerStyle int) error {
	if len(table.Headers) == 0 {
		return nil
	}
	if err := setRow(f, DataSheet, 1, stringsToCells(table.Headers)); err != nil {
		return err
	}
	if err := styleRow(f, DataSheet, 1, len(table.Headers), headerStyle); err != nil {
		return err
	}

	for i, r := range table.Rows {
		// short rows stop at their last present cell
		var cells []any
		for _, h := range table.Headers {
			v, ok := r[h]
			if !ok {
				break
			}
			cells = append(cells, cellValue(v))
		}
		if err := setRow(f, DataSheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, summary *models.Summary, headerStyle int) error {
	row := 1
	put := func(cells ...any) error {
		err := setRow(f, SummarySheet, row, cells)
		row++
		return err
	}
	heading := func(cells ...any) error {
		if err := styleRow(f, SummarySheet, row, len(cells), headerStyle); err != nil {
			return err
		}
		return put(cells...)
	}

	total := 0
	if summary != nil {
		total = summary.Total
	}
	if err := heading("Total", total); err != nil {
		return err
	}
	row++

	if err := heading("Type", "Count"); err != nil {
		return err
	}
	for _, label := range summary.TypeLabels() {
		if err := put(label, summary.TypeDistribution[label]); err != nil {
			return err
		}
	}
	row++

	if err := heading("Field", "Average"); err != nil {
		return err
	}
	for _, field := range summary.AverageFields() {
		if err := put(field, summary.Averages[field]); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, width, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(width, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}

func stringsToCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// cellValue stores numeric looking cells as numbers so spreadsheet formulas work on them
func cellValue(s string) any {
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return v
	}
	return s
}
