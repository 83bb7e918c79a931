package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/portal-api/internal/model"
)

// Sentinel errors translated into domain error kinds by the service layer.
var (
	ErrNotFound  = errors.New("record not found")
	ErrSlotTaken = errors.New("slot already taken")
	ErrDuplicate = errors.New("duplicate record")
)

type AppointmentRepository interface {
	// CreateIfSlotFree re-checks slot freedom and inserts in one
	// serializable transaction. Returns ErrSlotTaken when a non-terminal
	// appointment for the doctor overlaps the requested interval.
	CreateIfSlotFree(ctx context.Context, apt *model.Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	// GetDoctorAppointments returns the doctor's appointments in the given
	// statuses whose intervals intersect [from, to), ordered by start time.
	GetDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time, statuses []model.AppointmentStatus) ([]*model.Appointment, error)
	// UpdateStatusCAS applies a compare-and-swap status update conditioned
	// on version. Returns false when no row matched the (id, version) pair.
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, notes string, expectedVersion int64) (bool, error)
}

type MedicationRepository interface {
	CreateSchedule(ctx context.Context, schedule *model.MedicationSchedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*model.MedicationSchedule, error)
	// ListActiveSchedules returns schedules whose dosing window contains day.
	ListActiveSchedules(ctx context.Context, day time.Time) ([]*model.MedicationSchedule, error)
	// InsertLogIfAbsent inserts a log row unless one exists for the same
	// (schedule, date, timeOfDay); the unique constraint is the
	// de-duplication mechanism. Returns false when the row already existed.
	InsertLogIfAbsent(ctx context.Context, log *model.MedicationLog) (bool, error)
	GetLog(ctx context.Context, id uuid.UUID) (*model.MedicationLog, error)
	ListLogs(ctx context.Context, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error)
	// ResolveLogIfPending updates status only while the row is still
	// pending. Returns false when the row was already resolved or missing.
	ResolveLogIfPending(ctx context.Context, id uuid.UUID, status model.LogStatus, recordedAt *time.Time, notes, sideEffects string) (bool, error)
	AdherenceCounts(ctx context.Context, filters *model.MedicationLogFilters) (*model.AdherenceCounts, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// GetPendingEventsWithLock claims up to limit due events, leasing them
	// so concurrent workers do not pick up the same batch.
	GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string, retryAt *time.Time) error
	// MoveToDeadLetter archives an exhausted event and removes it from the
	// pending set atomically; the event is never fetched again.
	MoveToDeadLetter(ctx context.Context, event *model.OutboxEvent) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
