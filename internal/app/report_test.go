package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"cropadviser/pkg/domain"
)

func TestPredictionsReport(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	researcher := env.mustRegister(t, "R", "r@example.com", domain.LevelResearcher)

	prediction, err := env.app.RequestPrediction(context.Background(), farmer, domain.PredictionInput{
		AEZ: "DL1", SoilPH: 6.5, RainfallMM: 850, TemperatureC: 28, HumidityPct: 60,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := env.app.ProcessPrediction(context.Background(), prediction.ID, false); err != nil {
		t.Fatalf("process: %v", err)
	}

	data, err := env.app.PredictionsReport(context.Background(), researcher)
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Predictions")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][5] != "AEZ" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][2] != string(domain.PredictionReady) {
		t.Fatalf("status cell = %q", rows[1][2])
	}
}

func TestPredictionsReportForbiddenForFarmers(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	if _, err := env.app.PredictionsReport(context.Background(), farmer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("farmer export: err = %v", err)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "Admin", "admin@example.com", domain.LevelFarmer)
	admin.UserLevel = domain.LevelAdmin
	if err := env.store.SaveUser(admin); err != nil {
		t.Fatal(err)
	}
	env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)

	stats, err := env.app.Stats(context.Background(), admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 {
		t.Fatalf("users = %d", stats.Users)
	}
	if stats.Appointments != 0 || stats.Predictions != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	farmer, _, _ := env.store.GetUserByEmail("f@example.com")
	if _, err := env.app.Stats(context.Background(), farmer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("farmer stats: err = %v", err)
	}
}
