package app

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"cropadviser/pkg/domain"
	"cropadviser/pkg/store"
)

const reportSheet = "Predictions"

var reportHeader = []any{
	"ID", "User ID", "Status", "Crop", "Score",
	"AEZ", "Soil pH", "Rainfall (mm)", "Temperature (C)", "Humidity (%)",
	"Land Size", "Requested At",
}

// PredictionsReport builds the research dataset as an XLSX workbook. The
// caller sets the download headers.
func (a *App) PredictionsReport(ctx context.Context, actor domain.User) ([]byte, error) {
	if !isResearchRole(actor) {
		return nil, ErrForbidden
	}
	predictions, _, err := a.store.ListPredictions(store.PredictionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(reportSheet, "A1", &reportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, p := range predictions {
		row := []any{
			p.ID, p.UserID, string(p.Status), p.Crop, p.Score,
			p.Input.AEZ, p.Input.SoilPH, p.Input.RainfallMM, p.Input.TemperatureC, p.Input.HumidityPct,
			p.Input.LandSize, p.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
