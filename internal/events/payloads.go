package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types accepted by the consumer.
const (
	TypeOrderCompleted    = "order.completed"
	TypeOrderCancelled    = "order.cancelled"
	TypeInventoryAdjusted = "inventory.adjusted"
	TypeCOGSCalculated    = "cogs.calculated"
)

// Envelope is the wire form of a published domain event. Payload stays raw
// until the type is known.
type Envelope struct {
	EventID    uuid.UUID       `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderCompleted records a fulfilled sale to book as receivable and revenue.
type OrderCompleted struct {
	OrderID    uuid.UUID `json:"orderId"`
	Total      int64     `json:"total"`
	Channel    string    `json:"channel"`
	CustomerID *int64    `json:"customerId"`
}

// OrderCancelled reverses a previously completed order's revenue.
type OrderCancelled struct {
	OrderID uuid.UUID `json:"orderId"`
	Total   int64     `json:"total"`
}

// InventoryAdjusted carries a signed stock value delta.
type InventoryAdjusted struct {
	AdjustmentID uuid.UUID `json:"adjustmentId"`
	Delta        int64     `json:"delta"`
	Reason       string    `json:"reason"`
	Warehouse    string    `json:"warehouse"`
}

// COGSCalculated books cost of goods sold against inventory.
type COGSCalculated struct {
	OrderID uuid.UUID `json:"orderId"`
	Amount  int64     `json:"amount"`
}
