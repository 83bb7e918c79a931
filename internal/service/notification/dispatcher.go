package notification

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
)

// Event types published through the outbox.
const (
	EventAppointmentRequested = "appointment.requested"
	EventAppointmentApproved  = "appointment.approved"
	EventAppointmentRejected  = "appointment.rejected"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentStarted   = "appointment.started"
	EventAppointmentCompleted = "appointment.completed"
	EventMedicationDoseMissed = "medication.dose_missed"
)

// Dispatcher receives transition and dose events. Enqueue is fire-and-forget:
// it must never block or fail the triggering operation. Delivery happens out
// of band via the outbox processor.
type Dispatcher interface {
	Enqueue(ctx context.Context, eventType string, payload interface{})
}

type outboxDispatcher struct {
	outboxRepo repository.OutboxRepository
	logger     zerolog.Logger
}

func NewOutboxDispatcher(outboxRepo repository.OutboxRepository, logger zerolog.Logger) Dispatcher {
	return &outboxDispatcher{
		outboxRepo: outboxRepo,
		logger:     logger.With().Str("component", "notification_dispatcher").Logger(),
	}
}

// Enqueue persists the event for asynchronous delivery. Failures are logged
// and swallowed: notification delivery is not part of the transactional
// guarantee of a transition.
func (d *outboxDispatcher) Enqueue(ctx context.Context, eventType string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal notification event")
		return
	}

	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   body,
	}
	if err := d.outboxRepo.Create(ctx, event); err != nil {
		d.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to enqueue notification event")
	}
}

// NopDispatcher discards all events. Used where notifications are irrelevant.
type NopDispatcher struct{}

func (NopDispatcher) Enqueue(ctx context.Context, eventType string, payload interface{}) {}
