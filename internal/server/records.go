package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"cropadviser/internal/app"
	"cropadviser/pkg/domain"
)

type cultivationRequest struct {
	UserID              uint       `json:"user_id"`
	Crop                string     `json:"crop"`
	Location            string     `json:"location"`
	LandSize            string     `json:"land_size"`
	Status              string     `json:"status"`
	PlanningDate        time.Time  `json:"planning_date"`
	ExpectedHarvestDate *time.Time `json:"expected_harvest_date"`
	Note                string     `json:"note"`
}

func (r cultivationRequest) input() app.CultivationInput {
	return app.CultivationInput{
		UserID:              r.UserID,
		Crop:                r.Crop,
		Location:            r.Location,
		LandSize:            r.LandSize,
		Status:              r.Status,
		PlanningDate:        r.PlanningDate,
		ExpectedHarvestDate: r.ExpectedHarvestDate,
		Note:                r.Note,
	}
}

func (s *Server) handleCreateCultivation(w http.ResponseWriter, r *http.Request, actor domain.User) {
	var req cultivationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.app.CreateCultivation(r.Context(), actor, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, record)
}

func (s *Server) handleListCultivations(w http.ResponseWriter, r *http.Request, actor domain.User) {
	userID, _ := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	records, err := s.app.ListCultivations(r.Context(), actor, uint(userID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, records)
}

func (s *Server) handleGetCultivation(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.app.GetCultivation(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, record)
}

func (s *Server) handleUpdateCultivation(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req cultivationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.app.UpdateCultivation(r.Context(), actor, id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, record)
}

func (s *Server) handleDeleteCultivation(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.app.DeleteCultivation(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "cultivation deleted"})
}

type fertilizerRequest struct {
	UserID              uint       `json:"user_id"`
	Crop                string     `json:"crop"`
	FertilizerType      string     `json:"fertilizer_type"`
	ApplicationDate     time.Time  `json:"application_date"`
	NextApplicationDate *time.Time `json:"next_application_date"`
	Quantity            string     `json:"quantity"`
	ApplicationMethod   string     `json:"application_method"`
	Location            string     `json:"location"`
	LandSize            string     `json:"land_size"`
	Note                string     `json:"note"`
}

func (r fertilizerRequest) input() app.FertilizerInput {
	return app.FertilizerInput{
		UserID:              r.UserID,
		Crop:                r.Crop,
		FertilizerType:      domain.FertilizerType(strings.ToLower(strings.TrimSpace(r.FertilizerType))),
		ApplicationDate:     r.ApplicationDate,
		NextApplicationDate: r.NextApplicationDate,
		Quantity:            r.Quantity,
		ApplicationMethod:   r.ApplicationMethod,
		Location:            r.Location,
		LandSize:            r.LandSize,
		Note:                r.Note,
	}
}

func (s *Server) handleCreateFertilizer(w http.ResponseWriter, r *http.Request, actor domain.User) {
	var req fertilizerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.app.CreateFertilizer(r.Context(), actor, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, record)
}

func (s *Server) handleListFertilizers(w http.ResponseWriter, r *http.Request, actor domain.User) {
	userID, _ := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	records, err := s.app.ListFertilizers(r.Context(), actor, uint(userID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, records)
}

func (s *Server) handleGetFertilizer(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.app.GetFertilizer(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, record)
}

func (s *Server) handleUpdateFertilizer(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req fertilizerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.app.UpdateFertilizer(r.Context(), actor, id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, record)
}

func (s *Server) handleDeleteFertilizer(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.app.DeleteFertilizer(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "fertilizer record deleted"})
}
