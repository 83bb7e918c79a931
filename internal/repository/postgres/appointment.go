package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
)

const appointmentColumns = `
	id, patient_id, doctor_id, scheduled_at, duration_mins,
	reason, notes, status, version, created_at, updated_at
`

// CreateIfSlotFree inserts the appointment only when no non-terminal
// appointment for the doctor overlaps the requested interval. The check and
// the insert run in one serializable transaction so two concurrent bookings
// of the same slot cannot both succeed.
func (r *appointmentRepository) CreateIfSlotFree(ctx context.Context, apt *model.Appointment) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	conflictQuery := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			AND status IN ('requested', 'approved', 'active')
			AND scheduled_at < $3
			AND scheduled_at + (duration_mins * interval '1 minute') > $2
		)
	`
	var taken bool
	if err := tx.GetContext(ctx, &taken, conflictQuery, apt.DoctorID, apt.ScheduledAt, apt.EndsAt()); err != nil {
		return fmt.Errorf("failed to check slot: %w", err)
	}
	if taken {
		return repository.ErrSlotTaken
	}

	insertQuery := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	now := time.Now()
	apt.ID = uuid.New()
	apt.Version = 1
	apt.CreatedAt = now
	apt.UpdatedAt = now

	_, err = tx.ExecContext(ctx, insertQuery,
		apt.ID,
		apt.PatientID,
		apt.DoctorID,
		apt.ScheduledAt,
		apt.DurationMins,
		apt.Reason,
		apt.Notes,
		apt.Status,
		apt.Version,
		apt.CreatedAt,
		apt.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "40001" {
			// serialization failure: a concurrent booking won the slot
			return repository.ErrSlotTaken
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "40001" {
			return repository.ErrSlotTaken
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.DoctorID != uuid.Nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, filters.DoctorID)
		argCount++
	}
	if filters.PatientID != uuid.Nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, filters.PatientID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND scheduled_at < $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	query += " ORDER BY scheduled_at ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) GetDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time, statuses []model.AppointmentStatus) ([]*model.Appointment, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		AND status = ANY($2)
		AND scheduled_at < $4
		AND scheduled_at + (duration_mins * interval '1 minute') > $3
		ORDER BY scheduled_at ASC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, doctorID, pq.Array(strs), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatusCAS is the single write path for status changes: the update is
// conditioned on the version the caller read, and a stale version matches no
// row. Version increments monotonically on every success.
func (r *appointmentRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, notes string, expectedVersion int64) (bool, error) {
	query := `
		UPDATE appointments
		SET status = $1,
			notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $3 AND version = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, notes, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("failed to update appointment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
