package medication

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
)

type logKey struct {
	scheduleID uuid.UUID
	date       time.Time
	timeOfDay  model.TimeOfDay
}

type fakeMedicationRepo struct {
	schedules map[uuid.UUID]*model.MedicationSchedule
	logs      map[uuid.UUID]*model.MedicationLog
	byKey     map[logKey]uuid.UUID
}

func newFakeMedicationRepo() *fakeMedicationRepo {
	return &fakeMedicationRepo{
		schedules: make(map[uuid.UUID]*model.MedicationSchedule),
		logs:      make(map[uuid.UUID]*model.MedicationLog),
		byKey:     make(map[logKey]uuid.UUID),
	}
}

func (r *fakeMedicationRepo) CreateSchedule(ctx context.Context, schedule *model.MedicationSchedule) error {
	schedule.ID = uuid.New()
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = schedule.CreatedAt
	r.schedules[schedule.ID] = schedule
	return nil
}

func (r *fakeMedicationRepo) GetSchedule(ctx context.Context, id uuid.UUID) (*model.MedicationSchedule, error) {
	s, ok := r.schedules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (r *fakeMedicationRepo) ListActiveSchedules(ctx context.Context, day time.Time) ([]*model.MedicationSchedule, error) {
	var result []*model.MedicationSchedule
	for _, s := range r.schedules {
		if s.ActiveOn(day) {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *fakeMedicationRepo) InsertLogIfAbsent(ctx context.Context, log *model.MedicationLog) (bool, error) {
	key := logKey{log.ScheduleID, log.Date, log.TimeOfDay}
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	log.UpdatedAt = log.CreatedAt
	r.logs[log.ID] = log
	r.byKey[key] = log.ID
	return true, nil
}

func (r *fakeMedicationRepo) GetLog(ctx context.Context, id uuid.UUID) (*model.MedicationLog, error) {
	l, ok := r.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (r *fakeMedicationRepo) ListLogs(ctx context.Context, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error) {
	var result []*model.MedicationLog
	for _, l := range r.logs {
		if filters.PatientID != uuid.Nil && l.PatientID != filters.PatientID {
			continue
		}
		if filters.ScheduleID != uuid.Nil && l.ScheduleID != filters.ScheduleID {
			continue
		}
		if filters.Status != "" && l.Status != filters.Status {
			continue
		}
		result = append(result, l)
	}
	return result, nil
}

func (r *fakeMedicationRepo) ResolveLogIfPending(ctx context.Context, id uuid.UUID, status model.LogStatus, recordedAt *time.Time, notes, sideEffects string) (bool, error) {
	l, ok := r.logs[id]
	if !ok || l.Status != model.LogStatusPending {
		return false, nil
	}
	l.Status = status
	l.RecordedAt = recordedAt
	l.Notes = notes
	l.SideEffects = sideEffects
	l.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeMedicationRepo) AdherenceCounts(ctx context.Context, filters *model.MedicationLogFilters) (*model.AdherenceCounts, error) {
	counts := &model.AdherenceCounts{}
	logs, _ := r.ListLogs(ctx, filters)
	for _, l := range logs {
		switch l.Status {
		case model.LogStatusTaken:
			counts.Taken++
		case model.LogStatusMissed:
			counts.Missed++
		case model.LogStatusSkipped:
			counts.Skipped++
		case model.LogStatusPending:
			counts.Pending++
		}
	}
	return counts, nil
}

type recordingDispatcher struct {
	events []string
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, eventType string, payload interface{}) {
	d.events = append(d.events, eventType)
}

func newTestService(repo *fakeMedicationRepo) (*Service, *recordingDispatcher) {
	dispatcher := &recordingDispatcher{}
	return NewService(repo, dispatcher, zerolog.Nop()), dispatcher
}

func seedSchedule(repo *fakeMedicationRepo, patientID uuid.UUID, start time.Time, days int, times ...model.TimeOfDay) *model.MedicationSchedule {
	strs := make([]string, len(times))
	for i, t := range times {
		strs[i] = string(t)
	}
	s := &model.MedicationSchedule{
		PrescriptionID: uuid.New(),
		PatientID:      patientID,
		MedicationName: "amoxicillin",
		Dosage:         "500mg",
		DurationDays:   days,
		TimesOfDay:     strs,
		StartDate:      start,
	}
	s.ID = uuid.New()
	repo.schedules[s.ID] = s
	return s
}

func TestCreateSchedule(t *testing.T) {
	req := &model.CreateScheduleRequest{
		PrescriptionID: uuid.New(),
		PatientID:      uuid.New(),
		MedicationName: "amoxicillin",
		Dosage:         "500mg",
		DurationDays:   7,
		TimesOfDay:     []model.TimeOfDay{model.TimeOfDayMorning, model.TimeOfDayMorning, model.TimeOfDayEvening},
		StartDate:      time.Now(),
	}

	t.Run("doctor creates schedule with deduplicated times", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		svc, _ := newTestService(repo)

		schedule, err := svc.CreateSchedule(context.Background(), model.Actor{ID: uuid.New(), Role: model.RoleDoctor}, req)
		require.NoError(t, err)
		assert.Equal(t, []string{"morning", "evening"}, []string(schedule.TimesOfDay))
	})

	t.Run("patient cannot create schedules", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		svc, _ := newTestService(repo)

		_, err := svc.CreateSchedule(context.Background(), model.Actor{ID: req.PatientID, Role: model.RolePatient}, req)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrPermission))
	})

	t.Run("unknown time of day rejected", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		svc, _ := newTestService(repo)

		badReq := *req
		badReq.TimesOfDay = []model.TimeOfDay{"midnight"}
		_, err := svc.CreateSchedule(context.Background(), model.Actor{ID: uuid.New(), Role: model.RoleDoctor}, &badReq)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	})
}

func TestGenerateDailyLogs(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	patientID := uuid.New()

	t.Run("one pending row per schedule and time of day", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		seedSchedule(repo, patientID, day.AddDate(0, 0, -1), 7, model.TimeOfDayMorning, model.TimeOfDayEvening)
		seedSchedule(repo, patientID, day, 3, model.TimeOfDayAfternoon)
		svc, _ := newTestService(repo)

		inserted, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)
		assert.Equal(t, 3, inserted)

		for _, l := range repo.logs {
			assert.Equal(t, model.LogStatusPending, l.Status)
			assert.Equal(t, day, l.Date)
		}
	})

	t.Run("rerun inserts nothing", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		seedSchedule(repo, patientID, day, 7, model.TimeOfDayMorning)
		svc, _ := newTestService(repo)

		first, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)
		assert.Equal(t, 1, first)

		second, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)
		assert.Equal(t, 0, second)
		assert.Len(t, repo.logs, 1)
	})

	t.Run("expired schedules are skipped", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		seedSchedule(repo, patientID, day.AddDate(0, 0, -10), 7, model.TimeOfDayMorning)
		svc, _ := newTestService(repo)

		inserted, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)
		assert.Equal(t, 0, inserted)
	})

	t.Run("resolved rows survive regeneration", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		seedSchedule(repo, patientID, day, 7, model.TimeOfDayMorning)
		svc, _ := newTestService(repo)

		_, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)

		var logID uuid.UUID
		for id := range repo.logs {
			logID = id
		}
		resolved, err := repo.ResolveLogIfPending(context.Background(), logID, model.LogStatusTaken, nil, "", "")
		require.NoError(t, err)
		require.True(t, resolved)

		_, err = svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)
		assert.Equal(t, model.LogStatusTaken, repo.logs[logID].Status)
	})
}

func TestRecordDose(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	patientID := uuid.New()

	setup := func(t *testing.T) (*Service, *recordingDispatcher, *fakeMedicationRepo, uuid.UUID) {
		repo := newFakeMedicationRepo()
		seedSchedule(repo, patientID, day, 7, model.TimeOfDayMorning)
		svc, dispatcher := newTestService(repo)

		_, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)

		var logID uuid.UUID
		for id := range repo.logs {
			logID = id
		}
		return svc, dispatcher, repo, logID
	}

	patient := model.Actor{ID: patientID, Role: model.RolePatient}

	t.Run("patient marks dose taken", func(t *testing.T) {
		svc, dispatcher, _, logID := setup(t)

		log, err := svc.RecordDose(context.Background(), patient, logID, &model.RecordDoseRequest{Status: model.LogStatusTaken})
		require.NoError(t, err)
		assert.Equal(t, model.LogStatusTaken, log.Status)
		require.NotNil(t, log.RecordedAt)
		assert.Empty(t, dispatcher.events)
	})

	t.Run("missed dose emits an event", func(t *testing.T) {
		svc, dispatcher, _, logID := setup(t)

		log, err := svc.RecordDose(context.Background(), patient, logID, &model.RecordDoseRequest{Status: model.LogStatusMissed})
		require.NoError(t, err)
		assert.Equal(t, model.LogStatusMissed, log.Status)
		assert.Nil(t, log.RecordedAt)
		assert.Equal(t, []string{"medication.dose_missed"}, dispatcher.events)
	})

	t.Run("resolving twice conflicts", func(t *testing.T) {
		svc, _, _, logID := setup(t)

		_, err := svc.RecordDose(context.Background(), patient, logID, &model.RecordDoseRequest{Status: model.LogStatusSkipped, Notes: "nausea"})
		require.NoError(t, err)

		_, err = svc.RecordDose(context.Background(), patient, logID, &model.RecordDoseRequest{Status: model.LogStatusTaken})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
	})

	t.Run("pending is not a recordable status", func(t *testing.T) {
		svc, _, _, logID := setup(t)

		_, err := svc.RecordDose(context.Background(), patient, logID, &model.RecordDoseRequest{Status: model.LogStatusPending})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	})

	t.Run("another patient is forbidden", func(t *testing.T) {
		svc, _, _, logID := setup(t)

		_, err := svc.RecordDose(context.Background(), model.Actor{ID: uuid.New(), Role: model.RolePatient}, logID, &model.RecordDoseRequest{Status: model.LogStatusTaken})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrPermission))
	})

	t.Run("doctor cannot record for the patient", func(t *testing.T) {
		svc, _, _, logID := setup(t)

		_, err := svc.RecordDose(context.Background(), model.Actor{ID: uuid.New(), Role: model.RoleDoctor}, logID, &model.RecordDoseRequest{Status: model.LogStatusTaken})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrPermission))
	})

	t.Run("missing log not found", func(t *testing.T) {
		svc, _, _, _ := setup(t)

		_, err := svc.RecordDose(context.Background(), patient, uuid.New(), &model.RecordDoseRequest{Status: model.LogStatusTaken})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	})
}

func TestAdherenceStats(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	patientID := uuid.New()
	patient := model.Actor{ID: patientID, Role: model.RolePatient}

	t.Run("rate counts only resolved doses", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		schedule := seedSchedule(repo, patientID, day, 7, model.TimeOfDayMorning, model.TimeOfDayAfternoon, model.TimeOfDayEvening, model.TimeOfDayNight)
		svc, _ := newTestService(repo)

		_, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)

		statuses := []model.LogStatus{model.LogStatusTaken, model.LogStatusTaken, model.LogStatusMissed}
		i := 0
		for id := range repo.logs {
			if i >= len(statuses) {
				break
			}
			resolved, err := repo.ResolveLogIfPending(context.Background(), id, statuses[i], nil, "", "")
			require.NoError(t, err)
			require.True(t, resolved)
			i++
		}

		stats, err := svc.AdherenceStats(context.Background(), patient, &model.MedicationLogFilters{ScheduleID: schedule.ID})
		require.NoError(t, err)
		assert.True(t, stats.HasData)
		require.NotNil(t, stats.AdherenceRate)
		assert.InDelta(t, 2.0/3.0, *stats.AdherenceRate, 1e-9)
		assert.Equal(t, 1, stats.Pending)
	})

	t.Run("no resolved doses means no data", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		seedSchedule(repo, patientID, day, 7, model.TimeOfDayMorning)
		svc, _ := newTestService(repo)

		_, err := svc.GenerateDailyLogs(context.Background(), day)
		require.NoError(t, err)

		stats, err := svc.AdherenceStats(context.Background(), patient, &model.MedicationLogFilters{})
		require.NoError(t, err)
		assert.False(t, stats.HasData)
		assert.Nil(t, stats.AdherenceRate)
		assert.Equal(t, 1, stats.Pending)
	})

	t.Run("doctor must name a patient", func(t *testing.T) {
		repo := newFakeMedicationRepo()
		svc, _ := newTestService(repo)

		_, err := svc.AdherenceStats(context.Background(), model.Actor{ID: uuid.New(), Role: model.RoleDoctor}, &model.MedicationLogFilters{})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	})
}

func TestListLogs(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	patientID := uuid.New()
	otherID := uuid.New()

	repo := newFakeMedicationRepo()
	seedSchedule(repo, patientID, day, 7, model.TimeOfDayMorning)
	seedSchedule(repo, otherID, day, 7, model.TimeOfDayMorning)
	svc, _ := newTestService(repo)

	_, err := svc.GenerateDailyLogs(context.Background(), day)
	require.NoError(t, err)

	t.Run("patient sees only own logs", func(t *testing.T) {
		logs, err := svc.ListLogs(context.Background(),
			model.Actor{ID: patientID, Role: model.RolePatient},
			&model.MedicationLogFilters{PatientID: otherID})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, patientID, logs[0].PatientID)
	})

	t.Run("admin may list without a patient filter", func(t *testing.T) {
		logs, err := svc.ListLogs(context.Background(),
			model.Actor{ID: uuid.New(), Role: model.RoleAdmin},
			&model.MedicationLogFilters{})
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})

	t.Run("doctor must name a patient", func(t *testing.T) {
		_, err := svc.ListLogs(context.Background(),
			model.Actor{ID: uuid.New(), Role: model.RoleDoctor},
			&model.MedicationLogFilters{})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	})
}
