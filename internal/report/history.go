// Package report renders attendance history as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"geoattend/internal/attendance"
)

const historySheet = "Attendance"

var historyHeaders = []string{
	"Date", "Check-in", "Check-out", "Hours",
	"Check-in latitude", "Check-in longitude", "Check-in distance (m)",
	"Check-out latitude", "Check-out longitude", "Check-out distance (m)",
}

// WriteHistory writes one row per record, in the given order, with times
// shown in loc.
func WriteHistory(w io.Writer, records []attendance.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, header := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(historySheet, cell, header)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(historyHeaders), 1)
		f.SetCellStyle(historySheet, "A1", last, style)
	}

	for i, rec := range records {
		row := i + 2
		values := []any{rec.Day.Format("2006-01-02"), "", "", ""}
		if rec.CheckInAt != nil {
			values[1] = rec.CheckInAt.In(loc).Format("15:04:05")
		}
		if rec.CheckOutAt != nil {
			values[2] = rec.CheckOutAt.In(loc).Format("15:04:05")
		}
		if rec.CheckInAt != nil && rec.CheckOutAt != nil {
			values[3] = fmt.Sprintf("%.2f", rec.CheckOutAt.Sub(*rec.CheckInAt).Hours())
		}
		values = append(values, pointCells(rec.CheckInPoint, rec.CheckInDistance)...)
		values = append(values, pointCells(rec.CheckOutPoint, rec.CheckOutDistance)...)

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	if err := f.SetColWidth(historySheet, "A", "J", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func pointCells(p *attendance.GeoPoint, dist *float64) []any {
	if p == nil {
		return []any{"", "", ""}
	}
	d := ""
	if dist != nil {
		d = fmt.Sprintf("%.1f", *dist)
	}
	return []any{p.Lat, p.Lon, d}
}
