package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
)

// Booking window rules
const (
	workdayStartHour = 9
	workdayEndHour   = 17
	slotDuration     = model.AppointmentDurationMins * time.Minute
	maxAdvanceMonths = 3

	slotCacheTTL     = 30 * time.Second
	slotCacheCleanup = 5 * time.Minute
)

// SlotResolver computes bookable start times for a doctor on a given date.
// It is read-only and results may be stale the moment they are returned;
// booking re-validates inside the insert transaction.
type SlotResolver struct {
	repo  repository.AppointmentRepository
	cache *cache.Cache
	now   func() time.Time
}

func NewSlotResolver(repo repository.AppointmentRepository) *SlotResolver {
	return &SlotResolver{
		repo:  repo,
		cache: cache.New(slotCacheTTL, slotCacheCleanup),
		now:   time.Now,
	}
}

// AvailableSlots returns the ordered 30-minute start times between 09:00 and
// 17:00 on date that do not overlap an approved or active appointment for
// the doctor.
func (r *SlotResolver) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	day, err := r.validateDate(date)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s:%s", doctorID, day.Format("2006-01-02"))
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached.([]time.Time), nil
	}

	dayStart := day.Add(workdayStartHour * time.Hour)
	dayEnd := day.Add(workdayEndHour * time.Hour)

	busy, err := r.repo.GetDoctorAppointments(ctx, doctorID, dayStart, dayEnd,
		[]model.AppointmentStatus{model.AppointmentStatusApproved, model.AppointmentStatusActive})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	slots := make([]time.Time, 0, int(dayEnd.Sub(dayStart)/slotDuration))
	for t := dayStart; t.Before(dayEnd); t = t.Add(slotDuration) {
		if !overlapsAny(t, t.Add(slotDuration), busy) {
			slots = append(slots, t)
		}
	}

	r.cache.Set(cacheKey, slots, cache.DefaultExpiration)
	return slots, nil
}

// ValidateSlot checks that a booking start time is a legal candidate slot:
// on the 30-minute grid, inside the working window, and on a bookable date.
func (r *SlotResolver) ValidateSlot(scheduledAt time.Time) error {
	if _, err := r.validateDate(scheduledAt); err != nil {
		return err
	}

	if scheduledAt.Minute()%model.AppointmentDurationMins != 0 || scheduledAt.Second() != 0 || scheduledAt.Nanosecond() != 0 {
		return apperrors.NewValidation("scheduled_at", "start time must fall on a 30-minute boundary")
	}

	hour := scheduledAt.Hour()
	if hour < workdayStartHour || hour >= workdayEndHour {
		return apperrors.NewValidation("scheduled_at", "start time must be between 09:00 and 17:00")
	}
	return nil
}

// validateDate rejects past dates and dates beyond the booking horizon, and
// returns the date truncated to midnight.
func (r *SlotResolver) validateDate(date time.Time) (time.Time, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, date.Location())

	if day.Before(today) {
		return time.Time{}, apperrors.NewValidation("date", "date must not be in the past")
	}
	if day.After(today.AddDate(0, maxAdvanceMonths, 0)) {
		return time.Time{}, apperrors.NewValidation("date", fmt.Sprintf("date must be within %d months", maxAdvanceMonths))
	}
	return day, nil
}

func overlapsAny(start, end time.Time, appointments []*model.Appointment) bool {
	for _, apt := range appointments {
		if start.Before(apt.EndsAt()) && apt.ScheduledAt.Before(end) {
			return true
		}
	}
	return false
}
