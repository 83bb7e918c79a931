package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
)

const scheduleColumns = `
	id, prescription_id, patient_id, medication_name, dosage,
	duration_days, times_of_day, start_date, created_at, updated_at
`

const logColumns = `
	id, schedule_id, patient_id, date, time_of_day, status,
	recorded_at, notes, side_effects, created_at, updated_at
`

func (r *medicationRepository) CreateSchedule(ctx context.Context, schedule *model.MedicationSchedule) error {
	query := `
		INSERT INTO medication_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now()
	schedule.ID = uuid.New()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.PrescriptionID,
		schedule.PatientID,
		schedule.MedicationName,
		schedule.Dosage,
		schedule.DurationDays,
		schedule.TimesOfDay,
		schedule.StartDate,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medication schedule: %w", err)
	}
	return nil
}

func (r *medicationRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*model.MedicationSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM medication_schedules WHERE id = $1`

	var schedule model.MedicationSchedule
	err := r.db.GetContext(ctx, &schedule, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication schedule: %w", err)
	}
	return &schedule, nil
}

func (r *medicationRepository) ListActiveSchedules(ctx context.Context, day time.Time) ([]*model.MedicationSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM medication_schedules
		WHERE start_date <= $1
		AND start_date + (duration_days * interval '1 day') > $1
		ORDER BY created_at ASC
	`
	var schedules []*model.MedicationSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, day); err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	return schedules, nil
}

// InsertLogIfAbsent relies on the unique constraint over
// (schedule_id, date, time_of_day) for idempotency; concurrent generation
// passes for the same day are safe without locks.
func (r *medicationRepository) InsertLogIfAbsent(ctx context.Context, log *model.MedicationLog) (bool, error) {
	query := `
		INSERT INTO medication_logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (schedule_id, date, time_of_day) DO NOTHING
	`
	now := time.Now()
	log.ID = uuid.New()
	log.CreatedAt = now
	log.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.ScheduleID,
		log.PatientID,
		log.Date,
		log.TimeOfDay,
		log.Status,
		log.RecordedAt,
		log.Notes,
		log.SideEffects,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert medication log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *medicationRepository) GetLog(ctx context.Context, id uuid.UUID) (*model.MedicationLog, error) {
	query := `SELECT ` + logColumns + ` FROM medication_logs WHERE id = $1`

	var log model.MedicationLog
	err := r.db.GetContext(ctx, &log, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication log: %w", err)
	}
	return &log, nil
}

func (r *medicationRepository) ListLogs(ctx context.Context, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error) {
	query := `
		SELECT ` + logColumns + `
		FROM medication_logs l
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if filters.PatientID != uuid.Nil {
		query += fmt.Sprintf(" AND l.patient_id = $%d", argCount)
		args = append(args, filters.PatientID)
		argCount++
	}
	if filters.ScheduleID != uuid.Nil {
		query += fmt.Sprintf(" AND l.schedule_id = $%d", argCount)
		args = append(args, filters.ScheduleID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND l.status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if filters.Medication != "" {
		query += fmt.Sprintf(" AND l.schedule_id IN (SELECT id FROM medication_schedules WHERE medication_name = $%d)", argCount)
		args = append(args, filters.Medication)
		argCount++
	}
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND l.date >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND l.date <= $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	query += " ORDER BY l.date DESC, l.time_of_day ASC"

	var logs []*model.MedicationLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list medication logs: %w", err)
	}
	return logs, nil
}

// ResolveLogIfPending updates the log only while it is still pending, so a
// repeated patient action matches no row and the log stays immutable.
func (r *medicationRepository) ResolveLogIfPending(ctx context.Context, id uuid.UUID, status model.LogStatus, recordedAt *time.Time, notes, sideEffects string) (bool, error) {
	query := `
		UPDATE medication_logs
		SET status = $1,
			recorded_at = $2,
			notes = CASE WHEN $3 <> '' THEN $3 ELSE notes END,
			side_effects = CASE WHEN $4 <> '' THEN $4 ELSE side_effects END,
			updated_at = NOW()
		WHERE id = $5 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, status, recordedAt, notes, sideEffects, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve medication log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *medicationRepository) AdherenceCounts(ctx context.Context, filters *model.MedicationLogFilters) (*model.AdherenceCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE l.status = 'taken')   AS taken,
			COUNT(*) FILTER (WHERE l.status = 'missed')  AS missed,
			COUNT(*) FILTER (WHERE l.status = 'skipped') AS skipped,
			COUNT(*) FILTER (WHERE l.status = 'pending') AS pending
		FROM medication_logs l
		WHERE l.patient_id = $1
	`
	args := []interface{}{filters.PatientID}
	argCount := 2

	if filters.ScheduleID != uuid.Nil {
		query += fmt.Sprintf(" AND l.schedule_id = $%d", argCount)
		args = append(args, filters.ScheduleID)
		argCount++
	}
	if filters.Medication != "" {
		query += fmt.Sprintf(" AND l.schedule_id IN (SELECT id FROM medication_schedules WHERE medication_name = $%d)", argCount)
		args = append(args, filters.Medication)
		argCount++
	}
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND l.date >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND l.date <= $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	var counts model.AdherenceCounts
	if err := r.db.GetContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate adherence counts: %w", err)
	}
	return &counts, nil
}
