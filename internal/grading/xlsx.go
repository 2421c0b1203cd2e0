// SPDX-License-Identifier: GPL-3.0-or-later

package grading

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// sheetName is the single worksheet grade exports write to.
const sheetName = "Grades"

// ExportXLSX writes grades as a spreadsheet: one row per student,
// one column per check (earned points), then the total.
func ExportXLSX(w io.Writer, a *Assignment, grades []*Grade) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	headers := []string{"Student"}
	for i := range a.Checks {
		headers = append(headers, a.Checks[i].Name)
	}
	headers = append(headers, "Total")
	for col, h := range headers {
		if err := setCell(f, col+1, 1, h); err != nil {
			return err
		}
	}

	for row, grade := range grades {
		if err := setCell(f, 1, row+2, grade.Student); err != nil {
			return err
		}
		for col, result := range grade.Results {
			if err := setCell(f, col+2, row+2, result.Earned); err != nil {
				return err
			}
		}
		total := fmt.Sprintf("%d/%d", grade.Earned, grade.Total)
		if err := setCell(f, len(headers), row+2, total); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing spreadsheet: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheetName, cell, value)
}
