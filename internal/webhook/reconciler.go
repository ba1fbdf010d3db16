package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lojabr/checkout-core/internal/orders"
)

const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"
)

var ErrEmptyEvent = errors.New("webhook: event missing id or type")

// Event is the persisted record of a processed gateway delivery. The
// table is append-only and keyed by the gateway's event id, which is what
// makes replays idempotent even across process restarts.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	IntentID   string    `json:"intent_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Orphaned   bool      `json:"orphaned"`
	ReceivedAt time.Time `json:"received_at"`
}

type EventStore interface {
	// Insert records the event, reporting false when the id was already
	// recorded.
	Insert(ctx context.Context, e Event) (bool, error)
	MarkOrphaned(ctx context.Context, id string) error
}

// DedupCache is a fast-path filter in front of the event store. Best
// effort: a cache miss only costs one extra store round trip.
type DedupCache interface {
	Seen(ctx context.Context, id string) bool
	Mark(ctx context.Context, id string)
}

type OrderService interface {
	OnPaymentSucceeded(ctx context.Context, intentID string) error
	OnPaymentFailed(ctx context.Context, intentID string) error
}

// payload mirrors the gateway's delivery shape: the intent rides inside
// data.object with the order id in its metadata.
type payload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Reconciler verifies, dedups and applies gateway webhook deliveries.
type Reconciler struct {
	Secret    []byte
	Tolerance time.Duration
	Events    EventStore
	Cache     DedupCache
	Orders    OrderService
	Log       *zap.Logger
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Handle processes one delivery: verify the signature over the raw body,
// dedup on the gateway event id, record the event, then dispatch to the
// order service. A delivery for an unknown order is acknowledged and
// flagged orphaned so the gateway stops retrying it.
func (r *Reconciler) Handle(ctx context.Context, body []byte, signature string) error {
	if err := Verify(r.Secret, body, signature, time.Now(), r.Tolerance); err != nil {
		return err
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("webhook: decode event: %w", err)
	}
	if p.ID == "" || p.Type == "" {
		return ErrEmptyEvent
	}

	if r.Cache != nil && r.Cache.Seen(ctx, p.ID) {
		return nil
	}

	fresh, err := r.Events.Insert(ctx, Event{
		ID:         p.ID,
		Type:       p.Type,
		IntentID:   p.Data.Object.ID,
		OrderID:    p.Data.Object.Metadata.OrderID,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !fresh {
		r.logger().Debug("duplicate webhook event", zap.String("event_id", p.ID))
		if r.Cache != nil {
			r.Cache.Mark(ctx, p.ID)
		}
		return nil
	}

	err = r.dispatch(ctx, p)
	if errors.Is(err, orders.ErrNotFound) {
		r.logger().Warn("webhook for unknown order",
			zap.String("event_id", p.ID),
			zap.String("intent_id", p.Data.Object.ID))
		if mErr := r.Events.MarkOrphaned(ctx, p.ID); mErr != nil {
			return mErr
		}
		err = nil
	}
	if err != nil {
		return err
	}

	if r.Cache != nil {
		r.Cache.Mark(ctx, p.ID)
	}
	return nil
}

func (r *Reconciler) dispatch(ctx context.Context, p payload) error {
	intentID := p.Data.Object.ID
	switch p.Type {
	case TypePaymentSucceeded:
		return r.Orders.OnPaymentSucceeded(ctx, intentID)
	case TypePaymentFailed:
		return r.Orders.OnPaymentFailed(ctx, intentID)
	default:
		// Unknown types are recorded and acknowledged.
		r.logger().Debug("ignoring webhook type", zap.String("type", p.Type))
		return nil
	}
}
