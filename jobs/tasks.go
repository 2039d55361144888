package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-commerce/atlas-ledger/internal/assets"
	"github.com/atlas-commerce/atlas-ledger/internal/events"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries published domain events into the ledger.
	QueueEvents = "events"

	// TaskEventIngest applies one published domain event.
	TaskEventIngest = "ledger:event_ingest"
	// TaskDedupCleanup prunes old processed-event markers.
	TaskDedupCleanup = "ledger:dedup_cleanup"
	// TaskDepreciationCalculate computes a month's depreciation run.
	TaskDepreciationCalculate = "ledger:depreciation_calculate"
)

// NewEventIngestTask wraps an event envelope as a queue task.
func NewEventIngestTask(env events.Envelope) (*asynq.Task, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventIngest, data, asynq.Queue(QueueEvents)), nil
}

// NewEventIngestHandler adapts the event consumer to the queue. Validation,
// missing-mapping, and closed-period failures are permanent; retrying cannot
// fix a malformed payload, and a closed period only accepts postings again
// after an audited reopen, not by waiting.
func NewEventIngestHandler(consumer *events.Consumer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var env events.Envelope
		if err := json.Unmarshal(t.Payload(), &env); err != nil {
			logger.Error("event ingest: malformed task payload", slog.Any("error", err))
			return fmt.Errorf("unmarshal envelope: %v: %w", err, asynq.SkipRetry)
		}
		if err := consumer.Handle(ctx, env); err != nil {
			if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrPeriodClosed) {
				logger.Error("event ingest: permanent failure",
					slog.String("event_id", env.EventID.String()),
					slog.String("event_type", env.EventType),
					slog.Any("error", err))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

// DedupCleanupPayload bounds the marker retention window.
type DedupCleanupPayload struct {
	RetentionDays int `json:"retentionDays"`
}

// NewDedupCleanupTask constructs the cleanup task.
func NewDedupCleanupTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(DedupCleanupPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDedupCleanup, data, asynq.Queue(QueueDefault)), nil
}

// NewDedupCleanupHandler prunes processed-event markers older than the
// retention window. Source links stay forever, so replays of pruned events
// still cannot double-post.
func NewDedupCleanupHandler(store *shared.ProcessedEventStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DedupCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.RetentionDays <= 0 {
			payload.RetentionDays = 90
		}
		if err := store.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour); err != nil {
			return err
		}
		logger.Info("dedup cleanup done", slog.Int("retention_days", payload.RetentionDays))
		return nil
	}
}

// DepreciationPayload names the period to calculate; zero values mean the
// previous calendar month.
type DepreciationPayload struct {
	FiscalYear  int `json:"fiscalYear"`
	FiscalMonth int `json:"fiscalMonth"`
}

// NewDepreciationCalculateTask constructs the monthly depreciation task.
func NewDepreciationCalculateTask(payload DepreciationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationCalculate, data, asynq.Queue(QueueDefault)), nil
}

// NewDepreciationCalculateHandler runs the calculation phase only; posting
// stays a reviewed, operator-driven step.
func NewDepreciationCalculateHandler(service *assets.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DepreciationPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.FiscalYear == 0 || payload.FiscalMonth == 0 {
			prev := time.Now().UTC().AddDate(0, -1, 0)
			payload.FiscalYear, payload.FiscalMonth = prev.Year(), int(prev.Month())
		}
		run, err := service.Calculate(ctx, payload.FiscalYear, payload.FiscalMonth, 0)
		if err != nil {
			if errors.Is(err, shared.ErrConflict) {
				// Already posted for the period; nothing to recalculate.
				logger.Info("depreciation already posted",
					slog.Int("year", payload.FiscalYear), slog.Int("month", payload.FiscalMonth))
				return nil
			}
			return err
		}
		logger.Info("depreciation calculated",
			slog.Int64("run_id", run.ID),
			slog.Int("depreciated", run.DepreciatedCount),
			slog.Int("skipped", run.SkippedCount),
			slog.Int64("total", run.TotalAmount))
		return nil
	}
}
