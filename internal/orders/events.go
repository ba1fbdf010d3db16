package orders

import (
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated    = "OrderCreated"
	EventOrderPaid       = "OrderPaid"
	EventOrderCancelled  = "OrderCancelled"
	EventOrderRefunded   = "OrderRefunded"
	EventOrderFulfilling = "OrderFulfilling"
	EventOrderCompleted  = "OrderCompleted"
)

const (
	TopicOrderCreated    = "checkout.order.created"
	TopicOrderPaid       = "checkout.order.paid"
	TopicOrderCancelled  = "checkout.order.cancelled"
	TopicOrderRefunded   = "checkout.order.refunded"
	TopicOrderFulfilling = "checkout.order.fulfilling"
	TopicOrderCompleted  = "checkout.order.completed"
)

// Partition key = order_id so every event of one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string `json:"order_id"`
	ExternalID    string `json:"external_id"`
	UserID        string `json:"user_id"`
	SubtotalCents int64  `json:"subtotal_cents"`
	FeeCents      int64  `json:"fee_cents"`
	TotalCents    int64  `json:"total_cents"`
	Method        string `json:"payment_method"`
}

type OrderPaidPayload struct {
	OrderID    string `json:"order_id"`
	IntentID   string `json:"payment_intent_id"`
	TotalCents int64  `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type OrderRefundedPayload struct {
	OrderID       string `json:"order_id"`
	AmountCents   int64  `json:"amount_cents"`
	RefundedCents int64  `json:"refunded_cents"`
	Full          bool   `json:"full"`
}

type OrderStatusPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Publisher is satisfied by the kafka producer. A nil Publisher on the
// service disables event emission (unit tests, tooling).
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}
