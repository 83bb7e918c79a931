package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

// Canonical status vocabulary. The portal UI historically used "in-progress"
// and "active" interchangeably; "active" is the canonical value.
const (
	AppointmentStatusRequested AppointmentStatus = "requested"
	AppointmentStatusApproved  AppointmentStatus = "approved"
	AppointmentStatusActive    AppointmentStatus = "active"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentStatusRequested, AppointmentStatusApproved, AppointmentStatusActive,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusRejected:
		return true
	}
	return false
}

// AppointmentDurationMins is fixed; every appointment occupies one slot.
const AppointmentDurationMins = 30

type Appointment struct {
	Base
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	ScheduledAt  time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMins int               `db:"duration_mins" json:"duration_mins"`
	Reason       string            `db:"reason" json:"reason,omitempty"`
	Notes        string            `db:"notes" json:"notes,omitempty"`
	Status       AppointmentStatus `db:"status" json:"status"`
	Version      int64             `db:"version" json:"version"`
}

// EndsAt returns the exclusive end of the appointment's interval.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMins) * time.Minute)
}

// Overlaps reports whether two appointments' [scheduledAt, scheduledAt+duration)
// intervals intersect.
func (a *Appointment) Overlaps(other *Appointment) bool {
	return a.ScheduledAt.Before(other.EndsAt()) && other.ScheduledAt.Before(a.EndsAt())
}

type CreateAppointmentRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id" binding:"required" validate:"required"`
	PatientID   uuid.UUID `json:"patient_id" binding:"required" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required" validate:"required"`
	Reason      string    `json:"reason" validate:"max=1000"`
}

type TransitionRequest struct {
	Status          AppointmentStatus `json:"status" binding:"required"`
	ExpectedVersion int64             `json:"expected_version"`
	Notes           string            `json:"notes" validate:"max=2000"`
}

type AppointmentFilters struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    AppointmentStatus
	From      time.Time
	To        time.Time
}

// TransitionEvent is the contract emitted to the notification dispatcher on
// every successful status change.
type TransitionEvent struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	FromStatus    AppointmentStatus `json:"from_status"`
	ToStatus      AppointmentStatus `json:"to_status"`
	ActorRole     Role              `json:"actor_role"`
	Timestamp     time.Time         `json:"timestamp"`
}
