package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"cropadviser/pkg/domain"
)

func (e *testEnv) mustBook(t *testing.T, farmer domain.User, adviserID uint, subject string, date time.Time) domain.Appointment {
	t.Helper()
	appt, err := e.app.CreateAppointment(context.Background(), farmer, CreateAppointmentInput{
		AdviserID:       adviserID,
		Subject:         subject,
		AppointmentDate: date,
	})
	if err != nil {
		t.Fatalf("book %s: %v", subject, err)
	}
	return appt
}

func TestCreateAppointmentValidation(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	adviser := env.mustRegister(t, "A", "a@example.com", domain.LevelAgent)

	date := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	appt := env.mustBook(t, farmer, adviser.ID, "soil visit", date)
	if appt.Status != domain.AppointmentPending {
		t.Fatalf("new appointment status = %q", appt.Status)
	}
	if appt.DurationMinutes != 30 {
		t.Fatalf("default duration = %d", appt.DurationMinutes)
	}

	if _, err := env.app.CreateAppointment(context.Background(), farmer, CreateAppointmentInput{
		AdviserID: adviser.ID, AppointmentDate: date,
	}); !IsValidation(err) {
		t.Fatalf("missing subject: err = %v", err)
	}
	if _, err := env.app.CreateAppointment(context.Background(), farmer, CreateAppointmentInput{
		AdviserID: farmer.ID, Subject: "x", AppointmentDate: date,
	}); !IsValidation(err) {
		t.Fatalf("non-agent adviser: err = %v", err)
	}
	if _, err := env.app.CreateAppointment(context.Background(), adviser, CreateAppointmentInput{
		AdviserID: adviser.ID, Subject: "x", AppointmentDate: date,
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("agent booking: err = %v", err)
	}
}

func TestAppointmentOrderingPendingFirstThenDateDesc(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	adviser := env.mustRegister(t, "A", "a@example.com", domain.LevelAgent)

	day := func(d int) time.Time { return time.Date(2026, 9, d, 10, 0, 0, 0, time.UTC) }
	older := env.mustBook(t, farmer, adviser.ID, "older pending", day(5))
	newer := env.mustBook(t, farmer, adviser.ID, "newer pending", day(20))
	confirmedNew := env.mustBook(t, farmer, adviser.ID, "newest confirmed", day(25))
	confirmedOld := env.mustBook(t, farmer, adviser.ID, "old confirmed", day(1))

	confirmed := domain.AppointmentConfirmed
	for _, id := range []uint{confirmedNew.ID, confirmedOld.ID} {
		if _, err := env.app.UpdateAppointment(context.Background(), adviser, id, UpdateAppointmentInput{Status: &confirmed}); err != nil {
			t.Fatalf("confirm %d: %v", id, err)
		}
	}

	appts, err := env.app.ListAppointmentsForAdviser(context.Background(), adviser, adviser.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	wantOrder := []uint{newer.ID, older.ID, confirmedNew.ID, confirmedOld.ID}
	if len(appts) != len(wantOrder) {
		t.Fatalf("got %d appointments", len(appts))
	}
	for i, want := range wantOrder {
		if appts[i].ID != want {
			t.Fatalf("position %d: got id %d, want %d (status %q, date %v)",
				i, appts[i].ID, want, appts[i].Status, appts[i].AppointmentDate)
		}
	}
}

func TestAppointmentTransitions(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	adviser := env.mustRegister(t, "A", "a@example.com", domain.LevelAgent)
	date := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)

	appt := env.mustBook(t, farmer, adviser.ID, "visit", date)

	completed := domain.AppointmentCompleted
	if _, err := env.app.UpdateAppointment(context.Background(), adviser, appt.ID, UpdateAppointmentInput{Status: &completed}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->completed: err = %v", err)
	}

	confirmed := domain.AppointmentConfirmed
	if _, err := env.app.UpdateAppointment(context.Background(), farmer, appt.ID, UpdateAppointmentInput{Status: &confirmed}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("farmer confirming: err = %v", err)
	}
	if _, err := env.app.UpdateAppointment(context.Background(), adviser, appt.ID, UpdateAppointmentInput{Status: &confirmed}); err != nil {
		t.Fatalf("adviser confirm: %v", err)
	}

	updated, err := env.app.UpdateAppointment(context.Background(), adviser, appt.ID, UpdateAppointmentInput{Status: &completed})
	if err != nil {
		t.Fatalf("confirmed->completed: %v", err)
	}
	if updated.Status != domain.AppointmentCompleted {
		t.Fatalf("status = %q", updated.Status)
	}

	cancelled := domain.AppointmentCancelled
	if _, err := env.app.UpdateAppointment(context.Background(), adviser, appt.ID, UpdateAppointmentInput{Status: &cancelled}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed is terminal: err = %v", err)
	}

	second := env.mustBook(t, farmer, adviser.ID, "second", date)
	if _, err := env.app.UpdateAppointment(context.Background(), farmer, second.ID, UpdateAppointmentInput{Status: &cancelled}); err != nil {
		t.Fatalf("farmer cancel own pending: %v", err)
	}
}

func TestAppointmentEventsPublished(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	adviser := env.mustRegister(t, "A", "a@example.com", domain.LevelAgent)
	appt := env.mustBook(t, farmer, adviser.ID, "visit", time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC))

	confirmed := domain.AppointmentConfirmed
	if _, err := env.app.UpdateAppointment(context.Background(), adviser, appt.ID, UpdateAppointmentInput{Status: &confirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(env.events.Events) != 2 {
		t.Fatalf("published %d events, want create + confirm", len(env.events.Events))
	}
	if env.events.Events[0].Status != domain.AppointmentPending {
		t.Fatalf("first event status = %q", env.events.Events[0].Status)
	}
	if env.events.Events[1].Status != domain.AppointmentConfirmed {
		t.Fatalf("second event status = %q", env.events.Events[1].Status)
	}
}

func TestAppointmentVisibility(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	adviser := env.mustRegister(t, "A", "a@example.com", domain.LevelAgent)
	stranger := env.mustRegister(t, "S", "s@example.com", domain.LevelFarmer)
	appt := env.mustBook(t, farmer, adviser.ID, "visit", time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC))

	if _, err := env.app.GetAppointment(context.Background(), stranger, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger read: err = %v", err)
	}
	if _, err := env.app.ListAppointmentsForFarmer(context.Background(), stranger, farmer.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger list: err = %v", err)
	}
	if _, err := env.app.GetAppointment(context.Background(), farmer, appt.ID); err != nil {
		t.Fatalf("farmer read: %v", err)
	}
}
