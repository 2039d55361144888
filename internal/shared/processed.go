package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedEventStore persists event ids that have been fully applied, so
// at-least-once queue delivery never posts the same event twice.
type ProcessedEventStore struct {
	pool *pgxpool.Pool
}

// NewProcessedEventStore constructs the store.
func NewProcessedEventStore(pool *pgxpool.Pool) *ProcessedEventStore {
	return &ProcessedEventStore{pool: pool}
}

// ErrEventAlreadyProcessed indicates a duplicate event id.
var ErrEventAlreadyProcessed = errors.New("event already processed")

// MarkProcessed records the event id, failing on duplicates.
func (s *ProcessedEventStore) MarkProcessed(ctx context.Context, eventID uuid.UUID, eventType string) error {
	if s == nil {
		return errors.New("processed event store not initialised")
	}
	if eventID == uuid.Nil {
		return errors.New("event id required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO processed_events (event_id, event_type, processed_at) VALUES ($1, $2, $3)`, eventID, eventType, time.Now())
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrEventAlreadyProcessed
		}
		return err
	}
	return nil
}

// IsProcessed reports whether the event id has already been applied.
func (s *ProcessedEventStore) IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if s == nil {
		return false, errors.New("processed event store not initialised")
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id=$1)`, eventID).Scan(&exists)
	return exists, err
}

// Cleanup removes entries older than retention.
func (s *ProcessedEventStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	return err
}
