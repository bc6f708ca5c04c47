package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderUpdated       = "OrderUpdated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
	EventResourceAdjusted   = "ResourceAdjusted"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or resource_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID  string   `json:"order_id"`
	UserID   string   `json:"user_id"`
	Size     Size     `json:"size"`
	Color    Color    `json:"color"`
	Design   Design   `json:"design"`
	Material Material `json:"material"`
	Quantity int      `json:"quantity"`
}

type OrderUpdatedPayload struct {
	OrderID          string   `json:"order_id"`
	UserID           string   `json:"user_id"`
	Color            Color    `json:"color"`
	Material         Material `json:"material"`
	Quantity         int      `json:"quantity"`
	PreviousColor    Color    `json:"previous_color"`
	PreviousMaterial Material `json:"previous_material"`
	PreviousQuantity int      `json:"previous_quantity"`
}

type OrderStatusChangedPayload struct {
	OrderID  string `json:"order_id"`
	From     Status `json:"from"`
	To       Status `json:"to"`
	Terminal bool   `json:"terminal"`
}

type OrderDeletedPayload struct {
	OrderID  string `json:"order_id"`
	UserID   string `json:"user_id"`
	Status   Status `json:"status"`
	Restored bool   `json:"restored"` // reservation returned to the ledger
}

// ResourceAdjustedPayload carries the quantity after the change.
type ResourceAdjustedPayload struct {
	ResourceID string       `json:"resource_id"`
	Type       ResourceType `json:"type"`
	Name       string       `json:"name"`
	Quantity   int          `json:"quantity"`
	Reason     string       `json:"reason"`
	OrderID    string       `json:"order_id,omitempty"`
}

const (
	ReasonOrderCreated    = "order_created"
	ReasonOrderUpdated    = "order_updated"
	ReasonOrderDeleted    = "order_deleted"
	ReasonResourceCreated = "resource_created"
	ReasonResourceUpdated = "resource_updated"
)

type traceKey struct{}

// WithTraceID attaches the request id that ends up in Envelope.TraceID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
