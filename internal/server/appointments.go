package server

import (
	"net/http"
	"strings"
	"time"

	"cropadviser/internal/app"
	"cropadviser/pkg/domain"
)

type createAppointmentRequest struct {
	AdviserID       uint      `json:"adviser_id"`
	Subject         string    `json:"subject"`
	AppointmentDate time.Time `json:"appointment_date"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        string    `json:"location"`
	Message         string    `json:"message"`
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request, actor domain.User) {
	var req createAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	appt, err := s.app.CreateAppointment(r.Context(), actor, app.CreateAppointmentInput{
		AdviserID:       req.AdviserID,
		Subject:         req.Subject,
		AppointmentDate: req.AppointmentDate,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
		Message:         req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, appt)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request, actor domain.User) {
	status := domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	appts, err := s.app.ListAppointments(r.Context(), actor, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, appts)
}

func (s *Server) handleAdviserAppointments(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appts, err := s.app.ListAppointmentsForAdviser(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, appts)
}

func (s *Server) handleFarmerAppointments(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appts, err := s.app.ListAppointmentsForFarmer(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, appts)
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	appt, err := s.app.GetAppointment(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, appt)
}

type updateAppointmentRequest struct {
	Status          *string    `json:"appointment_status"`
	AppointmentDate *time.Time `json:"appointment_date"`
	DurationMinutes *int       `json:"duration_minutes"`
	Location        *string    `json:"location"`
	Message         *string    `json:"message"`
}

func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := app.UpdateAppointmentInput{
		AppointmentDate: req.AppointmentDate,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
		Message:         req.Message,
	}
	if req.Status != nil {
		status := domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		in.Status = &status
	}
	appt, err := s.app.UpdateAppointment(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, appt)
}
