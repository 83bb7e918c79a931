package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayNight     TimeOfDay = "night"
)

func (t TimeOfDay) IsValid() bool {
	switch t {
	case TimeOfDayMorning, TimeOfDayAfternoon, TimeOfDayEvening, TimeOfDayNight:
		return true
	}
	return false
}

// MedicationSchedule is the recurring dose-time definition from which daily
// log rows are generated. Immutable once created; edits create a new schedule.
type MedicationSchedule struct {
	Base
	PrescriptionID uuid.UUID      `db:"prescription_id" json:"prescription_id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	MedicationName string         `db:"medication_name" json:"medication_name"`
	Dosage         string         `db:"dosage" json:"dosage"`
	DurationDays   int            `db:"duration_days" json:"duration_days"`
	TimesOfDay     pq.StringArray `db:"times_of_day" json:"times_of_day"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
}

// ActiveOn reports whether day falls inside [startDate, startDate+durationDays).
func (s *MedicationSchedule) ActiveOn(day time.Time) bool {
	start := s.StartDate.Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, s.DurationDays)
	d := day.Truncate(24 * time.Hour)
	return !d.Before(start) && d.Before(end)
}

type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusTaken   LogStatus = "taken"
	LogStatusMissed  LogStatus = "missed"
	LogStatusSkipped LogStatus = "skipped"
)

func (s LogStatus) IsValid() bool {
	switch s {
	case LogStatusPending, LogStatusTaken, LogStatusMissed, LogStatusSkipped:
		return true
	}
	return false
}

// IsResolved reports whether the patient already acted on the log.
func (s LogStatus) IsResolved() bool {
	return s != LogStatusPending
}

// MedicationLog is one generated dose row. Exactly one row exists per
// (scheduleID, date, timeOfDay); mutated once by the patient's action.
type MedicationLog struct {
	Base
	ScheduleID  uuid.UUID  `db:"schedule_id" json:"schedule_id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Date        time.Time  `db:"date" json:"date"`
	TimeOfDay   TimeOfDay  `db:"time_of_day" json:"time_of_day"`
	Status      LogStatus  `db:"status" json:"status"`
	RecordedAt  *time.Time `db:"recorded_at" json:"recorded_at,omitempty"`
	Notes       string     `db:"notes" json:"notes,omitempty"`
	SideEffects string     `db:"side_effects" json:"side_effects,omitempty"`
}

type CreateScheduleRequest struct {
	PrescriptionID uuid.UUID   `json:"prescription_id" binding:"required" validate:"required"`
	PatientID      uuid.UUID   `json:"patient_id" binding:"required" validate:"required"`
	MedicationName string      `json:"medication_name" binding:"required" validate:"required,max=200"`
	Dosage         string      `json:"dosage" binding:"required" validate:"required,max=100"`
	DurationDays   int         `json:"duration_days" binding:"required" validate:"required,min=1,max=365"`
	TimesOfDay     []TimeOfDay `json:"times_of_day" binding:"required" validate:"required,min=1,max=4"`
	StartDate      time.Time   `json:"start_date" binding:"required" validate:"required"`
}

type RecordDoseRequest struct {
	Status      LogStatus `json:"status" binding:"required"`
	Notes       string    `json:"notes" validate:"max=1000"`
	SideEffects string    `json:"side_effects" validate:"max=1000"`
}

type MedicationLogFilters struct {
	PatientID  uuid.UUID
	ScheduleID uuid.UUID
	Status     LogStatus
	Medication string
	From       time.Time
	To         time.Time
}

// AdherenceCounts holds aggregate log counts per status.
type AdherenceCounts struct {
	Taken   int `db:"taken" json:"taken"`
	Missed  int `db:"missed" json:"missed"`
	Skipped int `db:"skipped" json:"skipped"`
	Pending int `db:"pending" json:"pending"`
}

// AdherenceStats reports counts plus the adherence rate over resolved doses.
// Rate is nil (and HasData false) when no dose has been resolved: the caller
// sees "no data", never a zero division.
type AdherenceStats struct {
	AdherenceCounts
	AdherenceRate *float64 `json:"adherence_rate,omitempty"`
	HasData       bool     `json:"has_data"`
}

// MissedDoseEvent is emitted to the notification dispatcher when a dose is
// recorded as missed; alerting happens downstream.
type MissedDoseEvent struct {
	LogID          uuid.UUID `json:"log_id"`
	ScheduleID     uuid.UUID `json:"schedule_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	MedicationName string    `json:"medication_name,omitempty"`
	Date           time.Time `json:"date"`
	TimeOfDay      TimeOfDay `json:"time_of_day"`
	Timestamp      time.Time `json:"timestamp"`
}
