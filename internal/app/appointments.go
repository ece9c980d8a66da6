package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cropadviser/pkg/domain"
	"cropadviser/pkg/store"
)

const defaultAppointmentMinutes = 30

// CreateAppointmentInput is the farmer's booking request.
type CreateAppointmentInput struct {
	AdviserID       uint
	Subject         string
	AppointmentDate time.Time
	DurationMinutes int
	Location        string
	Message         string
}

func (a *App) CreateAppointment(ctx context.Context, actor domain.User, in CreateAppointmentInput) (domain.Appointment, error) {
	if actor.UserLevel != domain.LevelFarmer && actor.UserLevel != domain.LevelAdmin {
		return domain.Appointment{}, ErrForbidden
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return domain.Appointment{}, invalidf("subject is required")
	}
	if in.AppointmentDate.IsZero() {
		return domain.Appointment{}, invalidf("appointment_date is required")
	}
	if in.DurationMinutes < 0 {
		return domain.Appointment{}, invalidf("duration_minutes must be positive")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = defaultAppointmentMinutes
	}
	adviser, ok, err := a.store.GetUserByID(in.AdviserID)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("lookup adviser: %w", err)
	}
	if !ok || adviser.UserLevel != domain.LevelAgent {
		return domain.Appointment{}, invalidf("adviser %d not found", in.AdviserID)
	}

	appt := domain.Appointment{
		FarmerID:        actor.ID,
		AdviserID:       adviser.ID,
		Subject:         subject,
		AppointmentDate: in.AppointmentDate.UTC(),
		DurationMinutes: in.DurationMinutes,
		Location:        strings.TrimSpace(in.Location),
		Message:         strings.TrimSpace(in.Message),
		Status:          domain.AppointmentPending,
		CreatedAt:       a.now().UTC(),
		UpdatedAt:       a.now().UTC(),
	}
	if err := a.store.CreateAppointment(&appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	slog.InfoContext(ctx, "appointment_created", "appointment_id", appt.ID, "farmer_id", appt.FarmerID, "adviser_id", appt.AdviserID)
	a.publishAppointment(ctx, appt)
	return appt, nil
}

func (a *App) GetAppointment(ctx context.Context, actor domain.User, id uint) (domain.Appointment, error) {
	appt, ok, err := a.store.GetAppointment(id)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("lookup appointment: %w", err)
	}
	if !ok {
		return domain.Appointment{}, ErrNotFound
	}
	if !canSeeAppointment(actor, appt) {
		return domain.Appointment{}, ErrForbidden
	}
	return appt, nil
}

// ListAppointments is the admin view, optionally filtered by status.
func (a *App) ListAppointments(ctx context.Context, actor domain.User, status domain.AppointmentStatus) ([]domain.Appointment, error) {
	if actor.UserLevel != domain.LevelAdmin {
		return nil, ErrForbidden
	}
	appts, err := a.store.ListAppointments(store.AppointmentFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	OrderAppointments(appts)
	return appts, nil
}

func (a *App) ListAppointmentsForAdviser(ctx context.Context, actor domain.User, adviserID uint) ([]domain.Appointment, error) {
	if actor.ID != adviserID && actor.UserLevel != domain.LevelAdmin {
		return nil, ErrForbidden
	}
	appts, err := a.store.ListAppointments(store.AppointmentFilter{AdviserID: adviserID})
	if err != nil {
		return nil, fmt.Errorf("list adviser appointments: %w", err)
	}
	OrderAppointments(appts)
	return appts, nil
}

func (a *App) ListAppointmentsForFarmer(ctx context.Context, actor domain.User, farmerID uint) ([]domain.Appointment, error) {
	if actor.ID != farmerID && actor.UserLevel != domain.LevelAdmin {
		return nil, ErrForbidden
	}
	appts, err := a.store.ListAppointments(store.AppointmentFilter{FarmerID: farmerID})
	if err != nil {
		return nil, fmt.Errorf("list farmer appointments: %w", err)
	}
	OrderAppointments(appts)
	return appts, nil
}

// UpdateAppointmentInput changes appointment details and/or its status.
// Nil fields are left as they are.
type UpdateAppointmentInput struct {
	Status          *domain.AppointmentStatus
	AppointmentDate *time.Time
	DurationMinutes *int
	Location        *string
	Message         *string
}

func (a *App) UpdateAppointment(ctx context.Context, actor domain.User, id uint, in UpdateAppointmentInput) (domain.Appointment, error) {
	appt, ok, err := a.store.GetAppointment(id)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("lookup appointment: %w", err)
	}
	if !ok {
		return domain.Appointment{}, ErrNotFound
	}
	if !canSeeAppointment(actor, appt) {
		return domain.Appointment{}, ErrForbidden
	}

	statusChanged := false
	if in.Status != nil && *in.Status != appt.Status {
		next := *in.Status
		if !validTransition(appt.Status, next) {
			return domain.Appointment{}, ErrInvalidTransition
		}
		if !actorMaySetStatus(actor, appt, next) {
			return domain.Appointment{}, ErrForbidden
		}
		appt.Status = next
		statusChanged = true
	}
	if in.AppointmentDate != nil {
		if in.AppointmentDate.IsZero() {
			return domain.Appointment{}, invalidf("appointment_date cannot be empty")
		}
		appt.AppointmentDate = in.AppointmentDate.UTC()
	}
	if in.DurationMinutes != nil {
		if *in.DurationMinutes <= 0 {
			return domain.Appointment{}, invalidf("duration_minutes must be positive")
		}
		appt.DurationMinutes = *in.DurationMinutes
	}
	if in.Location != nil {
		appt.Location = strings.TrimSpace(*in.Location)
	}
	if in.Message != nil {
		appt.Message = strings.TrimSpace(*in.Message)
	}
	appt.UpdatedAt = a.now().UTC()
	if err := a.store.SaveAppointment(appt); err != nil {
		return domain.Appointment{}, fmt.Errorf("save appointment: %w", err)
	}
	if statusChanged {
		slog.InfoContext(ctx, "appointment_status_changed", "appointment_id", appt.ID, "appointment_status", appt.Status, "actor_id", actor.ID)
		a.publishAppointment(ctx, appt)
	}
	return appt, nil
}

// publishAppointment emits the event best effort; a broker outage never fails
// the request that triggered it.
func (a *App) publishAppointment(ctx context.Context, appt domain.Appointment) {
	if err := a.events.AppointmentChanged(ctx, appt); err != nil {
		slog.WarnContext(ctx, "publish appointment event", "appointment_id", appt.ID, "err", err)
	}
}

func canSeeAppointment(actor domain.User, appt domain.Appointment) bool {
	return actor.ID == appt.FarmerID || actor.ID == appt.AdviserID || actor.UserLevel == domain.LevelAdmin
}

// validTransition encodes the appointment lifecycle: pending can be confirmed
// or cancelled, confirmed can be completed or cancelled, completed and
// cancelled are terminal.
func validTransition(from, to domain.AppointmentStatus) bool {
	switch from {
	case domain.AppointmentPending:
		return to == domain.AppointmentConfirmed || to == domain.AppointmentCancelled
	case domain.AppointmentConfirmed:
		return to == domain.AppointmentCompleted || to == domain.AppointmentCancelled
	default:
		return false
	}
}

// actorMaySetStatus restricts who drives each transition: the farmer may only
// cancel, the adviser confirms, completes or cancels, admins may do anything.
func actorMaySetStatus(actor domain.User, appt domain.Appointment, next domain.AppointmentStatus) bool {
	if actor.UserLevel == domain.LevelAdmin {
		return true
	}
	if actor.ID == appt.AdviserID {
		return true
	}
	if actor.ID == appt.FarmerID {
		return next == domain.AppointmentCancelled
	}
	return false
}

// OrderAppointments sorts in place: the pending block first, then everything
// else, date-descending within each block.
func OrderAppointments(appts []domain.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		iPending := appts[i].Status == domain.AppointmentPending
		jPending := appts[j].Status == domain.AppointmentPending
		if iPending != jPending {
			return iPending
		}
		return appts[i].AppointmentDate.After(appts[j].AppointmentDate)
	})
}
