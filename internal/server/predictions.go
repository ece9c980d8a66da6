package server

import (
	"net/http"
	"strings"
	"time"

	"cropadviser/pkg/domain"
	"cropadviser/pkg/store"
)

type predictionRequest struct {
	AEZ          string  `json:"aez"`
	SoilPH       float64 `json:"soil_ph"`
	RainfallMM   float64 `json:"rainfall_mm"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	LandSize     string  `json:"land_size"`
}

func (s *Server) handleCreatePrediction(w http.ResponseWriter, r *http.Request, actor domain.User) {
	var req predictionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	prediction, err := s.app.RequestPrediction(r.Context(), actor, domain.PredictionInput{
		AEZ:          req.AEZ,
		SoilPH:       req.SoilPH,
		RainfallMM:   req.RainfallMM,
		TemperatureC: req.TemperatureC,
		HumidityPct:  req.HumidityPct,
		LandSize:     req.LandSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, prediction)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request, actor domain.User) {
	q := r.URL.Query()
	page, pageSize := pagination(q.Get("page"), q.Get("pageSize"))
	result, err := s.app.ListPredictions(r.Context(), actor, store.PredictionFilter{
		Status:   domain.PredictionStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, result.Predictions, page, pageSize, result.Total)
}

func (s *Server) handleUserPredictions(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, pageSize := pagination(q.Get("page"), q.Get("pageSize"))
	result, err := s.app.ListPredictionsForUser(r.Context(), actor, id, store.PredictionFilter{
		Status:   domain.PredictionStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, result.Predictions, page, pageSize, result.Total)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	prediction, err := s.app.GetPrediction(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, prediction)
}

func (s *Server) handleExportPredictions(w http.ResponseWriter, r *http.Request, actor domain.User) {
	data, err := s.app.PredictionsReport(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filename := "predictions-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
