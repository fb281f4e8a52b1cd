package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"wisefido-vision/internal/models"
)

// AlarmEventExportHeader 报警历史导出表头
var AlarmEventExportHeader = []string{
	"Event ID",
	"Device ID",
	"Event Type",
	"Level",
	"Status",
	"Severity Score",
	"Triggered At",
	"Resolved At",
	"Duration (s)",
}

// GenerateAlarmEventExport 生成报警历史 Excel 文件
// events 为空时只生成表头
func GenerateAlarmEventExport(events []*models.AlarmEvent) ([]byte, error) {
	f := excelize.NewFile()

	sheetName := "Alarm Events"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlarmEventExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	columnWidths := []float64{38, 38, 18, 12, 12, 15, 22, 22, 14}
	for i := range AlarmEventExportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, event := range events {
		row := rowIdx + 2

		resolvedAt := ""
		durationSec := ""
		if event.ResolvedAt != nil {
			resolvedAt = event.ResolvedAt.Format(time.RFC3339)
			durationSec = fmt.Sprintf("%.0f", event.ResolvedAt.Sub(event.TriggeredAt).Seconds())
		}

		values := []interface{}{
			event.EventID,
			event.DeviceID,
			event.EventType,
			event.AlarmLevel,
			event.AlarmStatus,
			event.SeverityScore,
			event.TriggeredAt.Format(time.RFC3339),
			resolvedAt,
			durationSec,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	f.Close()

	return buf.Bytes(), nil
}
