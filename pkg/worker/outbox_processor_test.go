package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/messaging"
	"github.com/jwalitptl/portal-api/pkg/metrics"
)

// metrics register globally, so the package shares one instance
var testMetrics = metrics.NewMetrics("test", "outbox")

type fakeOutboxRepo struct {
	pending    []*model.OutboxEvent
	statuses   map[uuid.UUID]string
	deadLetter []uuid.UUID
}

func newFakeOutboxRepo(events ...*model.OutboxEvent) *fakeOutboxRepo {
	return &fakeOutboxRepo{
		pending:  events,
		statuses: make(map[uuid.UUID]string),
	}
}

func (r *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	event.ID = uuid.New()
	r.pending = append(r.pending, event)
	return nil
}

func (r *fakeOutboxRepo) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeOutboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string, retryAt *time.Time) error {
	r.statuses[id] = status
	return nil
}

// MoveToDeadLetter mirrors the real repository: the event is archived and
// removed from the pending set in one step.
func (r *fakeOutboxRepo) MoveToDeadLetter(ctx context.Context, event *model.OutboxEvent) error {
	r.deadLetter = append(r.deadLetter, event.ID)
	for i, e := range r.pending {
		if e.ID == event.ID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	published []string
	err       error
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBroker) Close() error { return nil }

func makeEvent(eventType string, retryCount int) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		Payload:    json.RawMessage(`{"appointment_id":"x"}`),
		Status:     string(model.OutboxStatusPending),
		RetryCount: retryCount,
		CreatedAt:  time.Now(),
	}
}

func newTestProcessor(repo *fakeOutboxRepo, broker messaging.Broker) *OutboxProcessor {
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, logger.NewLogger(nil), testMetrics)
}

func TestProcessEvents(t *testing.T) {
	t.Run("publishes events and marks them processed", func(t *testing.T) {
		e1 := makeEvent("appointment.approved", 0)
		e2 := makeEvent("medication.dose_missed", 0)
		repo := newFakeOutboxRepo(e1, e2)
		broker := &fakeBroker{}
		p := newTestProcessor(repo, broker)

		require.NoError(t, p.processEvents(context.Background()))
		assert.Equal(t, []string{"appointment.approved", "medication.dose_missed"}, broker.published)
		assert.Equal(t, string(model.OutboxStatusProcessed), repo.statuses[e1.ID])
		assert.Equal(t, string(model.OutboxStatusProcessed), repo.statuses[e2.ID])
		assert.Empty(t, repo.deadLetter)
	})

	t.Run("publish failure marks the event failed for retry", func(t *testing.T) {
		e := makeEvent("appointment.requested", 0)
		repo := newFakeOutboxRepo(e)
		broker := &fakeBroker{err: errors.New("redis down")}
		p := newTestProcessor(repo, broker)

		require.NoError(t, p.processEvents(context.Background()))
		assert.Equal(t, string(model.OutboxStatusFailed), repo.statuses[e.ID])
		assert.Empty(t, repo.deadLetter)
	})

	t.Run("exhausted retries move the event to dead letter", func(t *testing.T) {
		e := makeEvent("appointment.requested", 1)
		repo := newFakeOutboxRepo(e)
		broker := &fakeBroker{err: errors.New("redis down")}
		p := newTestProcessor(repo, broker)

		require.NoError(t, p.processEvents(context.Background()))
		assert.Equal(t, []uuid.UUID{e.ID}, repo.deadLetter)
		assert.Empty(t, repo.pending)
	})

	t.Run("dead-lettered events are never reprocessed", func(t *testing.T) {
		e := makeEvent("appointment.requested", 1)
		repo := newFakeOutboxRepo(e)
		broker := &fakeBroker{err: errors.New("redis down")}
		p := newTestProcessor(repo, broker)

		require.NoError(t, p.processEvents(context.Background()))
		require.NoError(t, p.processEvents(context.Background()))
		require.NoError(t, p.processEvents(context.Background()))

		assert.Equal(t, []uuid.UUID{e.ID}, repo.deadLetter, "event must be dead-lettered exactly once")
	})

	t.Run("one bad event does not block the batch", func(t *testing.T) {
		bad := makeEvent("appointment.requested", 1)
		good := makeEvent("appointment.approved", 0)
		repo := newFakeOutboxRepo(bad, good)
		broker := &selectiveBroker{failOn: "appointment.requested"}
		p := newTestProcessor(repo, broker)

		require.NoError(t, p.processEvents(context.Background()))
		assert.Equal(t, string(model.OutboxStatusProcessed), repo.statuses[good.ID])
		assert.Equal(t, []uuid.UUID{bad.ID}, repo.deadLetter)
	})
}

type selectiveBroker struct {
	failOn string
}

func (b *selectiveBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if channel == b.failOn {
		return errors.New("redis down")
	}
	return nil
}

func (b *selectiveBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *selectiveBroker) Close() error { return nil }
