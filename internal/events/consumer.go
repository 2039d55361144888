package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atlas-commerce/atlas-ledger/internal/ledger"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

const sourceService = "events"

// Poster posts the journal entry an event produces.
type Poster interface {
	CreateAndPost(ctx context.Context, input ledger.DraftInput) (ledger.JournalEntry, error)
}

// DedupStore remembers which event ids have been fully applied.
type DedupStore interface {
	IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID, eventType string) error
}

// Meter counts consumed events by type and outcome.
type Meter interface {
	CountEvent(eventType, outcome string)
}

// Consumer applies published domain events to the ledger exactly once. The
// real idempotency guard is the source link written inside the ledger
// transaction; the dedup store is a fast path that also survives replays
// after the entry itself was voided.
type Consumer struct {
	poster   Poster
	mappings MappingRepository
	dedup    DedupStore
	meter    Meter
	logger   *slog.Logger
}

// NewConsumer constructs the event consumer.
func NewConsumer(poster Poster, mappings MappingRepository, dedup DedupStore, logger *slog.Logger) *Consumer {
	return &Consumer{poster: poster, mappings: mappings, dedup: dedup, logger: logger}
}

// WithMeter attaches an event counter.
func (c *Consumer) WithMeter(meter Meter) {
	c.meter = meter
}

// Handle applies one event. A nil return acknowledges the message; a
// ValidationError or NotFoundError marks the event permanently failed so the
// transport does not retry; anything else is retryable.
func (c *Consumer) Handle(ctx context.Context, env Envelope) error {
	if env.EventID == uuid.Nil {
		return shared.Validation("events: event id required")
	}
	if env.OccurredAt.IsZero() {
		return shared.Validation("events: occurredAt required")
	}

	done, err := c.dedup.IsProcessed(ctx, env.EventID)
	if err != nil {
		return err
	}
	if done {
		c.logger.Info("event already processed", slog.String("event_id", env.EventID.String()))
		c.count(env.EventType, "duplicate")
		return nil
	}

	lines, description, err := c.buildLines(ctx, env)
	if err != nil {
		c.count(env.EventType, "rejected")
		return err
	}

	occurred := env.OccurredAt.UTC()
	_, err = c.poster.CreateAndPost(ctx, ledger.DraftInput{
		FiscalYear:        occurred.Year(),
		FiscalMonth:       int(occurred.Month()),
		EntryDate:         occurred,
		Type:              ledger.EntryTypeSystem,
		Description:       description,
		SourceService:     sourceService,
		SourceReferenceID: env.EventID,
		CreatedBy:         0,
		Lines:             lines,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrSourceAlreadyLinked) {
			// A previous delivery posted the entry but crashed before the
			// marker was written. Repair the marker and ack.
			c.logger.Warn("event entry already posted", slog.String("event_id", env.EventID.String()))
			c.count(env.EventType, "duplicate")
			return c.mark(ctx, env)
		}
		return err
	}
	c.count(env.EventType, "posted")
	return c.mark(ctx, env)
}

func (c *Consumer) count(eventType, outcome string) {
	if c.meter == nil {
		return
	}
	c.meter.CountEvent(eventType, outcome)
}

func (c *Consumer) mark(ctx context.Context, env Envelope) error {
	err := c.dedup.MarkProcessed(ctx, env.EventID, env.EventType)
	if err != nil && !errors.Is(err, shared.ErrEventAlreadyProcessed) {
		return err
	}
	return nil
}

func (c *Consumer) buildLines(ctx context.Context, env Envelope) ([]ledger.LineInput, string, error) {
	switch env.EventType {
	case TypeOrderCompleted:
		var p OrderCompleted
		if err := decode(env.Payload, &p); err != nil {
			return nil, "", err
		}
		if p.Total <= 0 {
			return nil, "", shared.Validation("events: order total must be positive")
		}
		ar, err := c.account(ctx, "SALES", KeyAccountsReceivable)
		if err != nil {
			return nil, "", err
		}
		revenue, err := c.account(ctx, "SALES", KeySalesRevenue)
		if err != nil {
			return nil, "", err
		}
		channel := optional(p.Channel)
		return []ledger.LineInput{
			{AccountID: ar, Direction: ledger.DirectionDebit, Amount: p.Total, Channel: channel, CustomerID: p.CustomerID},
			{AccountID: revenue, Direction: ledger.DirectionCredit, Amount: p.Total, Channel: channel, CustomerID: p.CustomerID},
		}, fmt.Sprintf("Order %s completed", p.OrderID), nil

	case TypeOrderCancelled:
		var p OrderCancelled
		if err := decode(env.Payload, &p); err != nil {
			return nil, "", err
		}
		if p.Total <= 0 {
			return nil, "", shared.Validation("events: order total must be positive")
		}
		returns, err := c.account(ctx, "SALES", KeySalesReturns)
		if err != nil {
			return nil, "", err
		}
		ar, err := c.account(ctx, "SALES", KeyAccountsReceivable)
		if err != nil {
			return nil, "", err
		}
		return []ledger.LineInput{
			{AccountID: returns, Direction: ledger.DirectionDebit, Amount: p.Total},
			{AccountID: ar, Direction: ledger.DirectionCredit, Amount: p.Total},
		}, fmt.Sprintf("Order %s cancelled", p.OrderID), nil

	case TypeInventoryAdjusted:
		var p InventoryAdjusted
		if err := decode(env.Payload, &p); err != nil {
			return nil, "", err
		}
		if p.Delta == 0 {
			return nil, "", shared.Validation("events: inventory delta must be non-zero")
		}
		inventory, err := c.account(ctx, "INVENTORY", KeyInventory)
		if err != nil {
			return nil, "", err
		}
		adjustment, err := c.account(ctx, "INVENTORY", KeyInventoryAdjustment)
		if err != nil {
			return nil, "", err
		}
		warehouse := optional(p.Warehouse)
		amount := p.Delta
		debit, credit := inventory, adjustment
		if amount < 0 {
			amount = -amount
			debit, credit = adjustment, inventory
		}
		return []ledger.LineInput{
			{AccountID: debit, Direction: ledger.DirectionDebit, Amount: amount, Warehouse: warehouse},
			{AccountID: credit, Direction: ledger.DirectionCredit, Amount: amount, Warehouse: warehouse},
		}, fmt.Sprintf("Inventory adjustment %s (%s)", p.AdjustmentID, p.Reason), nil

	case TypeCOGSCalculated:
		var p COGSCalculated
		if err := decode(env.Payload, &p); err != nil {
			return nil, "", err
		}
		if p.Amount <= 0 {
			return nil, "", shared.Validation("events: cogs amount must be positive")
		}
		cogs, err := c.account(ctx, "INVENTORY", KeyCOGS)
		if err != nil {
			return nil, "", err
		}
		inventory, err := c.account(ctx, "INVENTORY", KeyInventory)
		if err != nil {
			return nil, "", err
		}
		return []ledger.LineInput{
			{AccountID: cogs, Direction: ledger.DirectionDebit, Amount: p.Amount},
			{AccountID: inventory, Direction: ledger.DirectionCredit, Amount: p.Amount},
		}, fmt.Sprintf("COGS for order %s", p.OrderID), nil

	default:
		return nil, "", shared.Validationf("events: unknown event type %q", env.EventType)
	}
}

func (c *Consumer) account(ctx context.Context, module, key string) (int64, error) {
	mapping, err := c.mappings.Get(ctx, module, key)
	if err != nil {
		return 0, err
	}
	return mapping.AccountID, nil
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return shared.Validation("events: empty payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return shared.Validationf("events: malformed payload: %v", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
