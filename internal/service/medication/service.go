package medication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
	"github.com/jwalitptl/portal-api/internal/service/notification"
	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
)

// Service generates per-schedule daily dose logs and tracks their
// pending/taken/missed/skipped lifecycle.
type Service struct {
	repo       repository.MedicationRepository
	dispatcher notification.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo repository.MedicationRepository, dispatcher notification.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "medication_service").Logger(),
		now:        time.Now,
	}
}

// CreateSchedule records a new dose-time definition. Schedules are immutable
// once created; a prescription edit creates a new schedule version.
func (s *Service) CreateSchedule(ctx context.Context, actor model.Actor, req *model.CreateScheduleRequest) (*model.MedicationSchedule, error) {
	if actor.Role != model.RoleDoctor && actor.Role != model.RoleAdmin {
		return nil, apperrors.NewPermission("only doctors can create medication schedules")
	}

	times := make([]string, 0, len(req.TimesOfDay))
	seen := make(map[model.TimeOfDay]bool)
	for _, t := range req.TimesOfDay {
		if !t.IsValid() {
			return nil, apperrors.NewValidation("times_of_day", "unknown time of day: "+string(t))
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		times = append(times, string(t))
	}

	schedule := &model.MedicationSchedule{
		PrescriptionID: req.PrescriptionID,
		PatientID:      req.PatientID,
		MedicationName: req.MedicationName,
		Dosage:         req.Dosage,
		DurationDays:   req.DurationDays,
		TimesOfDay:     times,
		StartDate:      req.StartDate,
	}
	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return schedule, nil
}

// GenerateDailyLogs inserts one pending log per (schedule, asOfDate,
// timeOfDay) for every schedule active on asOfDate. Generation is idempotent
// and safe to run concurrently: existing rows are left untouched and never
// regenerated. Returns the number of rows actually inserted.
func (s *Service) GenerateDailyLogs(ctx context.Context, asOfDate time.Time) (int, error) {
	day := time.Date(asOfDate.Year(), asOfDate.Month(), asOfDate.Day(), 0, 0, 0, 0, time.UTC)

	schedules, err := s.repo.ListActiveSchedules(ctx, day)
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}

	inserted := 0
	for _, schedule := range schedules {
		for _, t := range schedule.TimesOfDay {
			timeOfDay := model.TimeOfDay(t)
			if !timeOfDay.IsValid() {
				s.logger.Warn().
					Str("schedule_id", schedule.ID.String()).
					Str("time_of_day", t).
					Msg("skipping unknown time of day on schedule")
				continue
			}

			log := &model.MedicationLog{
				ScheduleID: schedule.ID,
				PatientID:  schedule.PatientID,
				Date:       day,
				TimeOfDay:  timeOfDay,
				Status:     model.LogStatusPending,
			}
			created, err := s.repo.InsertLogIfAbsent(ctx, log)
			if err != nil {
				return inserted, apperrors.NewInternal(err)
			}
			if created {
				inserted++
			}
		}
	}

	return inserted, nil
}

// RecordDose resolves a pending log as taken, missed or skipped. A log is
// resolved exactly once; repeats fail with InvalidTransitionError.
func (s *Service) RecordDose(ctx context.Context, actor model.Actor, logID uuid.UUID, req *model.RecordDoseRequest) (*model.MedicationLog, error) {
	if req.Status != model.LogStatusTaken && req.Status != model.LogStatusMissed && req.Status != model.LogStatusSkipped {
		return nil, apperrors.NewValidation("status", "status must be taken, missed or skipped")
	}

	log, err := s.repo.GetLog(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("medication log")
		}
		return nil, apperrors.NewInternal(err)
	}

	if actor.Role != model.RolePatient || actor.ID != log.PatientID {
		return nil, apperrors.NewPermission("only the patient may record their own doses")
	}

	var recordedAt *time.Time
	if req.Status == model.LogStatusTaken {
		now := s.now()
		recordedAt = &now
	}

	resolved, err := s.repo.ResolveLogIfPending(ctx, logID, req.Status, recordedAt, req.Notes, req.SideEffects)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !resolved {
		// the row existed a moment ago, so it lost the pending status
		return nil, apperrors.NewInvalidTransition("medication log is already recorded", log.Status)
	}

	result, err := s.repo.GetLog(ctx, logID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if req.Status == model.LogStatusMissed {
		s.dispatcher.Enqueue(ctx, notification.EventMedicationDoseMissed, model.MissedDoseEvent{
			LogID:      result.ID,
			ScheduleID: result.ScheduleID,
			PatientID:  result.PatientID,
			Date:       result.Date,
			TimeOfDay:  result.TimeOfDay,
			Timestamp:  s.now(),
		})
	}

	return result, nil
}

// ListLogs returns logs scoped to the actor: patients see their own rows.
func (s *Service) ListLogs(ctx context.Context, actor model.Actor, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error) {
	if actor.Role == model.RolePatient {
		filters.PatientID = actor.ID
	}
	if filters.PatientID == uuid.Nil && actor.Role != model.RoleAdmin {
		return nil, apperrors.NewValidation("patient_id", "patient_id is required")
	}

	logs, err := s.repo.ListLogs(ctx, filters)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return logs, nil
}

// AdherenceStats aggregates dose counts for a patient over an optional
// date-range/medication filter. The rate is only defined over resolved
// doses; with none, the result reports no data instead of dividing by zero.
func (s *Service) AdherenceStats(ctx context.Context, actor model.Actor, filters *model.MedicationLogFilters) (*model.AdherenceStats, error) {
	if actor.Role == model.RolePatient {
		filters.PatientID = actor.ID
	}
	if filters.PatientID == uuid.Nil {
		return nil, apperrors.NewValidation("patient_id", "patient_id is required")
	}

	counts, err := s.repo.AdherenceCounts(ctx, filters)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	stats := &model.AdherenceStats{AdherenceCounts: *counts}
	resolved := counts.Taken + counts.Missed + counts.Skipped
	if resolved > 0 {
		rate := float64(counts.Taken) / float64(resolved)
		stats.AdherenceRate = &rate
		stats.HasData = true
	}
	return stats, nil
}
