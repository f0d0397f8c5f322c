// Package export writes expanded occurrences as an .xlsx spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"planner/internal/model"
)

const (
	SheetName  = "Occurrences"
	TimeLayout = "2006-01-02 15:04"
)

type column struct {
	header string
	width  float64
	value  func(o model.Occurrence, conflict bool, loc *time.Location) any
}

var columns = []column{
	{"ID", 44, func(o model.Occurrence, _ bool, _ *time.Location) any { return o.ID.String() }},
	{"Title", 32, func(o model.Occurrence, _ bool, _ *time.Location) any { return o.Title }},
	{"Start", 18, func(o model.Occurrence, _ bool, loc *time.Location) any { return o.Start.In(loc).Format(TimeLayout) }},
	{"End", 18, func(o model.Occurrence, _ bool, loc *time.Location) any { return o.End.In(loc).Format(TimeLayout) }},
	{"Priority", 10, func(o model.Occurrence, _ bool, _ *time.Location) any { return string(o.Priority) }},
	{"Completed", 11, func(o model.Occurrence, _ bool, _ *time.Location) any { return yesNo(o.Completed) }},
	{"Conflict", 10, func(_ model.Occurrence, c bool, _ *time.Location) any { return yesNo(c) }},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// WriteOccurrences streams occs into a single-sheet workbook. conflicts is
// keyed by flat occurrence id; loc selects the display zone (nil = UTC).
func WriteOccurrences(w io.Writer, occs []model.Occurrence, conflicts map[string]bool, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col.header
		if err := sw.SetColWidth(i+1, i+1, col.width); err != nil {
			return err
		}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for r, o := range occs {
		conflict := conflicts[o.ID.String()]
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = col.value(o, conflict, loc)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("row %d: %w", r+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}
