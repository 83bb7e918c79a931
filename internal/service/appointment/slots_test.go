package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/portal-api/internal/model"
	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
)

func fixedResolver(repo *fakeAppointmentRepo, now time.Time) *SlotResolver {
	r := NewSlotResolver(repo)
	r.now = func() time.Time { return now }
	return r
}

func TestAvailableSlots(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	tomorrow := now.AddDate(0, 0, 1)
	doctorID := uuid.New()

	t.Run("empty day yields full grid", func(t *testing.T) {
		repo := newFakeAppointmentRepo()
		resolver := fixedResolver(repo, now)

		slots, err := resolver.AvailableSlots(context.Background(), doctorID, tomorrow)
		require.NoError(t, err)
		// 09:00 through 16:30, two slots per hour
		require.Len(t, slots, 16)
		assert.Equal(t, 9, slots[0].Hour())
		assert.Equal(t, 16, slots[len(slots)-1].Hour())
		assert.Equal(t, 30, slots[len(slots)-1].Minute())
	})

	t.Run("booked slots are excluded", func(t *testing.T) {
		repo := newFakeAppointmentRepo()
		busyAt := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, time.UTC)
		apt := &model.Appointment{
			PatientID:    uuid.New(),
			DoctorID:     doctorID,
			ScheduledAt:  busyAt,
			DurationMins: model.AppointmentDurationMins,
			Status:       model.AppointmentStatusApproved,
		}
		apt.ID = uuid.New()
		repo.appointments[apt.ID] = apt
		resolver := fixedResolver(repo, now)

		slots, err := resolver.AvailableSlots(context.Background(), doctorID, tomorrow)
		require.NoError(t, err)
		assert.Len(t, slots, 15)
		for _, s := range slots {
			assert.False(t, s.Equal(busyAt), "booked slot %v should be excluded", busyAt)
		}
	})

	t.Run("requested appointments do not block listing", func(t *testing.T) {
		repo := newFakeAppointmentRepo()
		apt := &model.Appointment{
			DoctorID:     doctorID,
			ScheduledAt:  time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 11, 0, 0, 0, time.UTC),
			DurationMins: model.AppointmentDurationMins,
			Status:       model.AppointmentStatusRequested,
		}
		apt.ID = uuid.New()
		repo.appointments[apt.ID] = apt
		resolver := fixedResolver(repo, now)

		slots, err := resolver.AvailableSlots(context.Background(), doctorID, tomorrow)
		require.NoError(t, err)
		assert.Len(t, slots, 16)
	})

	t.Run("past date rejected", func(t *testing.T) {
		repo := newFakeAppointmentRepo()
		resolver := fixedResolver(repo, now)

		_, err := resolver.AvailableSlots(context.Background(), doctorID, now.AddDate(0, 0, -1))
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	})

	t.Run("date beyond booking horizon rejected", func(t *testing.T) {
		repo := newFakeAppointmentRepo()
		resolver := fixedResolver(repo, now)

		_, err := resolver.AvailableSlots(context.Background(), doctorID, now.AddDate(0, 4, 0))
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	})
}

func TestValidateSlot(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	resolver := fixedResolver(newFakeAppointmentRepo(), now)
	day := now.AddDate(0, 0, 1)

	at := func(hour, minute int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		when    time.Time
		wantErr bool
	}{
		{"first slot of the day", at(9, 0), false},
		{"last slot of the day", at(16, 30), false},
		{"half-hour boundary", at(13, 30), false},
		{"off-grid minute", at(10, 15), true},
		{"before opening", at(8, 30), true},
		{"at closing", at(17, 0), true},
		{"non-zero seconds", at(10, 0).Add(5 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resolver.ValidateSlot(tt.when)
			if tt.wantErr {
				assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
