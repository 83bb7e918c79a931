package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
	"github.com/jwalitptl/portal-api/internal/service/notification"
	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
)

// Service is the authoritative state machine for an appointment's lifecycle.
// Appointments are created by patient booking requests, mutated only through
// Transition, and never deleted, only terminalized.
type Service struct {
	repo       repository.AppointmentRepository
	slots      *SlotResolver
	dispatcher notification.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo repository.AppointmentRepository, slots *SlotResolver, dispatcher notification.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		slots:      slots,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "appointment_service").Logger(),
		now:        time.Now,
	}
}

func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	return s.slots.AvailableSlots(ctx, doctorID, date)
}

// Create books a new appointment in requested status. Slot availability is
// re-checked inside the same atomic operation that inserts the row, so a
// slot claimed between query and booking surfaces as a ConflictError.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if actor.Role != model.RolePatient {
		return nil, apperrors.NewPermission("only patients can book appointments")
	}
	if actor.ID != req.PatientID {
		return nil, apperrors.NewPermission("patients can only book for themselves")
	}

	if err := s.slots.ValidateSlot(req.ScheduledAt); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		ScheduledAt:  req.ScheduledAt,
		DurationMins: model.AppointmentDurationMins,
		Reason:       req.Reason,
		Status:       model.AppointmentStatusRequested,
	}

	if err := s.repo.CreateIfSlotFree(ctx, apt); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, apperrors.NewConflict("slot is no longer available").
				WithDetail("scheduled_at", req.ScheduledAt)
		}
		return nil, apperrors.NewInternal(err)
	}

	s.dispatcher.Enqueue(ctx, notification.EventAppointmentRequested, model.TransitionEvent{
		AppointmentID: apt.ID,
		ToStatus:      model.AppointmentStatusRequested,
		ActorRole:     actor.Role,
		Timestamp:     s.now(),
	})

	return apt, nil
}

// Transition applies one edge of the lifecycle table. Failure order follows
// the operation contract: missing row, stale version, actor role, then edge
// legality. The persisted update is still a compare-and-swap so a concurrent
// writer between read and write surfaces as a ConflictError, never as a lost
// update.
func (s *Service) Transition(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.TransitionRequest) (*model.Appointment, error) {
	if !req.Status.IsValid() {
		return nil, apperrors.NewValidation("status", "unknown appointment status")
	}

	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment")
		}
		return nil, apperrors.NewInternal(err)
	}

	if apt.Version != req.ExpectedVersion {
		return nil, apperrors.NewConflict("appointment was modified concurrently").
			WithDetail("expected_version", req.ExpectedVersion).
			WithDetail("current_version", apt.Version)
	}

	rule, ok := lookupTransition(apt.Status, req.Status)
	if !ok {
		return nil, apperrors.NewInvalidTransition(
			"transition from "+string(apt.Status)+" to "+string(req.Status)+" is not allowed",
			apt.Status,
		)
	}

	if !rule.allows(actor.Role) {
		return nil, apperrors.NewPermission("role " + string(actor.Role) + " may not perform this transition")
	}
	if err := s.checkParticipant(actor, apt); err != nil {
		return nil, err
	}

	if rule.requiresNotes && strings.TrimSpace(req.Notes) == "" {
		return nil, apperrors.NewValidation("notes", "notes are required for this transition")
	}

	updated, err := s.repo.UpdateStatusCAS(ctx, id, req.Status, req.Notes, req.ExpectedVersion)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !updated {
		return nil, apperrors.NewConflict("appointment was modified concurrently").
			WithDetail("expected_version", req.ExpectedVersion)
	}

	result, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.dispatcher.Enqueue(ctx, rule.eventType, model.TransitionEvent{
		AppointmentID: id,
		FromStatus:    apt.Status,
		ToStatus:      req.Status,
		ActorRole:     actor.Role,
		Timestamp:     s.now(),
	})

	return result, nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment")
		}
		return nil, apperrors.NewInternal(err)
	}
	if err := s.checkParticipant(actor, apt); err != nil {
		return nil, err
	}
	return apt, nil
}

// List returns appointments scoped to the actor: patients and doctors see
// their own rows, admins see everything the filters match.
func (s *Service) List(ctx context.Context, actor model.Actor, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	switch actor.Role {
	case model.RolePatient:
		filters.PatientID = actor.ID
	case model.RoleDoctor:
		filters.DoctorID = actor.ID
	}

	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return appointments, nil
}

// checkParticipant restricts patients and doctors to appointments they take
// part in. Admins pass.
func (s *Service) checkParticipant(actor model.Actor, apt *model.Appointment) error {
	switch actor.Role {
	case model.RolePatient:
		if actor.ID != apt.PatientID {
			return apperrors.NewPermission("not a participant of this appointment")
		}
	case model.RoleDoctor:
		if actor.ID != apt.DoctorID {
			return apperrors.NewPermission("not a participant of this appointment")
		}
	}
	return nil
}
