package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/atlas-commerce/atlas-ledger/internal/events"
	"github.com/atlas-commerce/atlas-ledger/internal/ledger"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

type stubPoster struct {
	err   error
	calls int
}

func (p *stubPoster) CreateAndPost(ctx context.Context, input ledger.DraftInput) (ledger.JournalEntry, error) {
	p.calls++
	if p.err != nil {
		return ledger.JournalEntry{}, p.err
	}
	return ledger.JournalEntry{ID: 1, Status: ledger.EntryStatusPosted}, nil
}

type stubMappings struct{}

func (stubMappings) Get(ctx context.Context, module, key string) (events.AccountMapping, error) {
	return events.AccountMapping{Module: module, Key: key, AccountID: 1}, nil
}

type stubDedup struct {
	marked int
}

func (d *stubDedup) IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	return false, nil
}

func (d *stubDedup) MarkProcessed(ctx context.Context, eventID uuid.UUID, eventType string) error {
	d.marked++
	return nil
}

func cogsTask(t *testing.T) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(events.COGSCalculated{OrderID: uuid.New(), Amount: 100})
	require.NoError(t, err)
	task, err := NewEventIngestTask(events.Envelope{
		EventID:    uuid.New(),
		EventType:  events.TypeCOGSCalculated,
		OccurredAt: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Payload:    payload,
	})
	require.NoError(t, err)
	return task
}

func TestEventIngestHandlerSuccess(t *testing.T) {
	poster := &stubPoster{}
	dedup := &stubDedup{}
	consumer := events.NewConsumer(poster, stubMappings{}, dedup, slog.Default())
	handler := NewEventIngestHandler(consumer, slog.Default())

	require.NoError(t, handler(context.Background(), cogsTask(t)))
	require.Equal(t, 1, poster.calls)
	require.Equal(t, 1, dedup.marked)
}

func TestEventIngestHandlerMalformedTaskIsPermanent(t *testing.T) {
	consumer := events.NewConsumer(&stubPoster{}, stubMappings{}, &stubDedup{}, slog.Default())
	handler := NewEventIngestHandler(consumer, slog.Default())

	task := asynq.NewTask(TaskEventIngest, []byte(`{"eventId":`))
	err := handler(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEventIngestHandlerValidationIsPermanent(t *testing.T) {
	poster := &stubPoster{}
	consumer := events.NewConsumer(poster, stubMappings{}, &stubDedup{}, slog.Default())
	handler := NewEventIngestHandler(consumer, slog.Default())

	payload, err := json.Marshal(events.Envelope{
		EventID:    uuid.New(),
		EventType:  "order.exploded",
		OccurredAt: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	err = handler(context.Background(), asynq.NewTask(TaskEventIngest, payload))
	require.ErrorIs(t, err, asynq.SkipRetry, "unknown event types cannot succeed on retry")
	require.Zero(t, poster.calls)
}

func TestEventIngestHandlerTransientFailureRetries(t *testing.T) {
	poster := &stubPoster{err: errors.New("connection refused")}
	consumer := events.NewConsumer(poster, stubMappings{}, &stubDedup{}, slog.Default())
	handler := NewEventIngestHandler(consumer, slog.Default())

	err := handler(context.Background(), cogsTask(t))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry, "infrastructure failures must retry")
}

func TestEventIngestHandlerClosedPeriodIsPermanent(t *testing.T) {
	poster := &stubPoster{err: shared.PeriodClosed("ledger: fiscal period 2026-03 is CLOSED")}
	consumer := events.NewConsumer(poster, stubMappings{}, &stubDedup{}, slog.Default())
	handler := NewEventIngestHandler(consumer, slog.Default())

	err := handler(context.Background(), cogsTask(t))
	require.ErrorIs(t, err, asynq.SkipRetry, "a closed period needs a reopen, not a retry")
}
