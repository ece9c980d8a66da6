package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"cropadviser/pkg/domain"
	"cropadviser/pkg/store"
)

// RequestPrediction records the request and hands it to the worker queue.
func (a *App) RequestPrediction(ctx context.Context, actor domain.User, input domain.PredictionInput) (domain.Prediction, error) {
	if actor.UserLevel != domain.LevelFarmer && actor.UserLevel != domain.LevelAdmin {
		return domain.Prediction{}, ErrForbidden
	}
	input.AEZ = strings.ToUpper(strings.TrimSpace(input.AEZ))
	if input.AEZ == "" {
		return domain.Prediction{}, invalidf("aez is required")
	}
	if input.SoilPH < 0 || input.SoilPH > 14 {
		return domain.Prediction{}, invalidf("soil_ph must be between 0 and 14")
	}
	if input.RainfallMM < 0 || input.TemperatureC < -20 || input.TemperatureC > 60 ||
		input.HumidityPct < 0 || input.HumidityPct > 100 {
		return domain.Prediction{}, invalidf("climate readings out of range")
	}

	prediction := domain.Prediction{
		UserID:    actor.ID,
		Status:    domain.PredictionQueued,
		Input:     input,
		CreatedAt: a.now().UTC(),
		UpdatedAt: a.now().UTC(),
	}
	if err := a.store.CreatePrediction(&prediction); err != nil {
		return domain.Prediction{}, fmt.Errorf("create prediction: %w", err)
	}
	if a.jobs == nil {
		return domain.Prediction{}, errors.New("prediction queue not configured")
	}
	if err := a.jobs.Enqueue(ctx, prediction.ID); err != nil {
		prediction.Status = domain.PredictionFailed
		prediction.ErrorMessage = "could not schedule prediction"
		prediction.UpdatedAt = a.now().UTC()
		if saveErr := a.store.SavePrediction(prediction); saveErr != nil {
			slog.ErrorContext(ctx, "mark prediction failed", "prediction_id", prediction.ID, "err", saveErr)
		}
		return domain.Prediction{}, fmt.Errorf("enqueue prediction: %w", err)
	}
	slog.InfoContext(ctx, "prediction_queued", "prediction_id", prediction.ID, "user_id", actor.ID, "aez", input.AEZ)
	return prediction, nil
}

// ProcessPrediction is the queue handler. Engine rejections are final and
// recorded on the row; storage errors are returned so the queue retries.
func (a *App) ProcessPrediction(ctx context.Context, predictionID uint, lastAttempt bool) error {
	prediction, ok, err := a.store.GetPrediction(predictionID)
	if err != nil {
		if lastAttempt {
			slog.ErrorContext(ctx, "prediction unloadable on final attempt", "prediction_id", predictionID, "err", err)
		}
		return fmt.Errorf("load prediction %d: %w", predictionID, err)
	}
	if !ok {
		// Row was deleted; nothing to do.
		return nil
	}
	if prediction.Status == domain.PredictionReady || prediction.Status == domain.PredictionFailed {
		return nil
	}

	prediction.Status = domain.PredictionProcessing
	prediction.UpdatedAt = a.now().UTC()
	if err := a.store.SavePrediction(prediction); err != nil {
		return fmt.Errorf("mark prediction processing: %w", err)
	}

	crop, score, engineErr := Recommend(prediction.Input)
	if engineErr != nil {
		prediction.Status = domain.PredictionFailed
		prediction.ErrorMessage = engineErr.Error()
	} else {
		prediction.Status = domain.PredictionReady
		prediction.Crop = crop
		prediction.Score = score
		prediction.ErrorMessage = ""
	}
	prediction.UpdatedAt = a.now().UTC()
	if err := a.store.SavePrediction(prediction); err != nil {
		return fmt.Errorf("save prediction result: %w", err)
	}
	slog.InfoContext(ctx, "prediction_processed", "prediction_id", prediction.ID, "status", prediction.Status, "crop", prediction.Crop)
	return nil
}

func (a *App) GetPrediction(ctx context.Context, actor domain.User, id uint) (domain.Prediction, error) {
	prediction, ok, err := a.store.GetPrediction(id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("lookup prediction: %w", err)
	}
	if !ok {
		return domain.Prediction{}, ErrNotFound
	}
	if actor.ID != prediction.UserID && !isResearchRole(actor) {
		return domain.Prediction{}, ErrForbidden
	}
	return prediction, nil
}

// PredictionPage is a paginated prediction listing.
type PredictionPage struct {
	Predictions []domain.Prediction
	Total       int64
}

// ListPredictions is the research/admin view over all users.
func (a *App) ListPredictions(ctx context.Context, actor domain.User, filter store.PredictionFilter) (PredictionPage, error) {
	if !isResearchRole(actor) {
		return PredictionPage{}, ErrForbidden
	}
	return a.listPredictions(filter)
}

// ListPredictionsForUser is one user's history.
func (a *App) ListPredictionsForUser(ctx context.Context, actor domain.User, userID uint, filter store.PredictionFilter) (PredictionPage, error) {
	if actor.ID != userID && !isResearchRole(actor) {
		return PredictionPage{}, ErrForbidden
	}
	filter.UserID = userID
	return a.listPredictions(filter)
}

func (a *App) listPredictions(filter store.PredictionFilter) (PredictionPage, error) {
	predictions, total, err := a.store.ListPredictions(filter)
	if err != nil {
		return PredictionPage{}, fmt.Errorf("list predictions: %w", err)
	}
	return PredictionPage{Predictions: predictions, Total: total}, nil
}

func isResearchRole(actor domain.User) bool {
	return actor.UserLevel == domain.LevelAdmin || actor.UserLevel == domain.LevelResearcher
}

// cropProfile describes a crop's preferred growing conditions. Zone
// suitability follows the Sri Lankan agro-ecological classification: wet (W),
// intermediate (I) and dry (D) zones crossed with low (L), mid (M) and
// up-country (U) elevation.
type cropProfile struct {
	name      string
	zones     map[string]float64 // zone class ("WL", "DM", ...) -> base suitability 0..1
	phLow     float64
	phHigh    float64
	rainMM    float64 // annual optimum
	tempC     float64
	humidity  float64
}

var cropProfiles = []cropProfile{
	{
		name:     "rice",
		zones:    map[string]float64{"WL": 0.9, "WM": 0.7, "IL": 0.85, "IM": 0.6, "DL": 0.75, "DM": 0.5, "WU": 0.3, "IU": 0.3, "DU": 0.25},
		phLow:    5.5, phHigh: 7.0, rainMM: 1800, tempC: 28, humidity: 80,
	},
	{
		name:     "tea",
		zones:    map[string]float64{"WU": 0.95, "WM": 0.85, "IU": 0.7, "IM": 0.55, "WL": 0.4, "IL": 0.3, "DL": 0.1, "DM": 0.1, "DU": 0.15},
		phLow:    4.5, phHigh: 5.8, rainMM: 2200, tempC: 21, humidity: 75,
	},
	{
		name:     "maize",
		zones:    map[string]float64{"DL": 0.9, "DM": 0.8, "IL": 0.8, "IM": 0.7, "WL": 0.5, "WM": 0.4, "DU": 0.5, "IU": 0.4, "WU": 0.25},
		phLow:    5.8, phHigh: 7.2, rainMM: 900, tempC: 27, humidity: 60,
	},
	{
		name:     "coconut",
		zones:    map[string]float64{"WL": 0.85, "IL": 0.9, "DL": 0.7, "WM": 0.5, "IM": 0.5, "DM": 0.4, "WU": 0.1, "IU": 0.1, "DU": 0.1},
		phLow:    5.5, phHigh: 7.5, rainMM: 1500, tempC: 28, humidity: 75,
	},
	{
		name:     "chili",
		zones:    map[string]float64{"DL": 0.85, "DM": 0.75, "IL": 0.75, "IM": 0.65, "WL": 0.45, "WM": 0.4, "DU": 0.4, "IU": 0.35, "WU": 0.2},
		phLow:    6.0, phHigh: 7.0, rainMM: 800, tempC: 26, humidity: 60,
	},
	{
		name:     "onion",
		zones:    map[string]float64{"DL": 0.8, "DM": 0.7, "IL": 0.7, "IM": 0.6, "WL": 0.35, "WM": 0.3, "DU": 0.4, "IU": 0.3, "WU": 0.2},
		phLow:    6.0, phHigh: 7.5, rainMM: 700, tempC: 25, humidity: 55,
	},
	{
		name:     "potato",
		zones:    map[string]float64{"WU": 0.85, "IU": 0.8, "DU": 0.6, "WM": 0.5, "IM": 0.45, "DM": 0.3, "WL": 0.15, "IL": 0.15, "DL": 0.1},
		phLow:    5.0, phHigh: 6.5, rainMM: 1200, tempC: 18, humidity: 70,
	},
	{
		name:     "banana",
		zones:    map[string]float64{"WL": 0.85, "IL": 0.8, "DL": 0.6, "WM": 0.65, "IM": 0.6, "DM": 0.45, "WU": 0.25, "IU": 0.2, "DU": 0.15},
		phLow:    5.5, phHigh: 7.0, rainMM: 1600, tempC: 27, humidity: 75,
	},
}

// Recommend scores every crop against the field readings and returns the best
// match. It is a pure function of its input.
func Recommend(input domain.PredictionInput) (string, float64, error) {
	zone, err := zoneClass(input.AEZ)
	if err != nil {
		return "", 0, err
	}

	best := ""
	bestScore := 0.0
	for _, crop := range cropProfiles {
		base := crop.zones[zone]
		if base <= 0 {
			continue
		}
		climate := crop.climateFit(input)
		score := math.Round((0.55*base+0.45*climate)*1000) / 10 // percent, one decimal
		if score > bestScore {
			best = crop.name
			bestScore = score
		}
	}
	if best == "" {
		return "", 0, fmt.Errorf("no suitable crop for zone %s", input.AEZ)
	}
	return best, bestScore, nil
}

// climateFit returns 0..1 closeness of the readings to the crop optimum.
// Missing readings (zero values) count as neutral.
func (c cropProfile) climateFit(input domain.PredictionInput) float64 {
	parts := 0.0
	total := 0.0

	if input.SoilPH > 0 {
		mid := (c.phLow + c.phHigh) / 2
		span := (c.phHigh - c.phLow) / 2
		total += bandFit(input.SoilPH, mid, span*2)
		parts++
	}
	if input.RainfallMM > 0 {
		total += bandFit(input.RainfallMM, c.rainMM, c.rainMM*0.6)
		parts++
	}
	if input.TemperatureC != 0 {
		total += bandFit(input.TemperatureC, c.tempC, 8)
		parts++
	}
	if input.HumidityPct > 0 {
		total += bandFit(input.HumidityPct, c.humidity, 25)
		parts++
	}
	if parts == 0 {
		return 0.5
	}
	return total / parts
}

// bandFit maps |value-optimum| onto 1..0 across the tolerance band.
func bandFit(value, optimum, tolerance float64) float64 {
	if tolerance <= 0 {
		return 0
	}
	diff := math.Abs(value - optimum)
	if diff >= tolerance {
		return 0
	}
	return 1 - diff/tolerance
}

// zoneClass reduces an AEZ code like "WL2" or "DM1b" to its climate/elevation
// class ("WL", "DM").
func zoneClass(aez string) (string, error) {
	if len(aez) < 2 {
		return "", fmt.Errorf("unknown agro-ecological zone %q", aez)
	}
	climate := aez[0]
	elevation := aez[1]
	if climate != 'W' && climate != 'I' && climate != 'D' {
		return "", fmt.Errorf("unknown agro-ecological zone %q", aez)
	}
	if elevation != 'L' && elevation != 'M' && elevation != 'U' {
		return "", fmt.Errorf("unknown agro-ecological zone %q", aez)
	}
	return string(climate) + string(elevation), nil
}
