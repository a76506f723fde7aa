package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

type fakeOutbox struct {
	mu        sync.Mutex
	events    []*model.OutboxEvent
	processed []uuid.UUID
	failed    map[uuid.UUID]string
	cutoff    time.Time
}

func (f *fakeOutbox) GetPendingEvents(_ context.Context, limit, _ int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) < limit {
		limit = len(f.events)
	}
	return f.events[:limit], nil
}

func (f *fakeOutbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[uuid.UUID]string{}
	}
	f.failed[id] = msg
	return nil
}

func (f *fakeOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return 2, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published map[string][]byte
}

func (b *fakeBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failFirst {
		return errors.New("broker unavailable")
	}
	if b.published == nil {
		b.published = map[string][]byte{}
	}
	b.published[channel] = payload
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		MaxRetries:    5,
		Retention:     24 * time.Hour,
	}
}

func newEvent(t *testing.T, eventType string) *model.OutboxEvent {
	apt := model.NewAppointment(uuid.New(), nil, "2025-03-10", "10:00", "", time.Now())
	event, err := model.NewAppointmentEvent(eventType, apt, time.Now())
	require.NoError(t, err)
	return event
}

func newProcessor(t *testing.T, repo *fakeOutbox, broker *fakeBroker) *OutboxProcessor {
	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.New(logger.Config{Output: io.Discard}), metrics.NewNop())
	require.NoError(t, err)
	return p
}

func TestProcessBatchPublishesToEventChannel(t *testing.T) {
	event := newEvent(t, model.EventAppointmentCreated)
	repo := &fakeOutbox{events: []*model.OutboxEvent{event}}
	broker := &fakeBroker{}

	n, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.processed)

	payload, ok := broker.published["appointments.created"]
	require.True(t, ok)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, "Pending", body["status_label"])
}

func TestProcessBatchRetriesTransientFailures(t *testing.T) {
	event := newEvent(t, model.EventAppointmentCancelled)
	repo := &fakeOutbox{events: []*model.OutboxEvent{event}}
	broker := &fakeBroker{failFirst: 2}

	n, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, broker.calls)
	assert.Empty(t, repo.failed)
}

func TestProcessBatchMarksFailedAfterRetries(t *testing.T) {
	event := newEvent(t, model.EventAppointmentAssigned)
	repo := &fakeOutbox{events: []*model.OutboxEvent{event}}
	broker := &fakeBroker{failFirst: 100}

	n, err := newProcessor(t, repo, broker).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, broker.calls)
	assert.Contains(t, repo.failed[event.ID], "broker unavailable")
	assert.Empty(t, repo.processed)
}

func TestCleanupUsesRetentionWindow(t *testing.T) {
	repo := &fakeOutbox{}
	p := newProcessor(t, repo, &fakeBroker{})
	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	n, err := p.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, now.Add(-24*time.Hour), repo.cutoff)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(&fakeOutbox{}, &fakeBroker{}, cfg, logger.New(logger.Config{Output: io.Discard}), metrics.NewNop())
	assert.Error(t, err)
}
