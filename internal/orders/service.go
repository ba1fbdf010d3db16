package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lojabr/checkout-core/internal/checkout"
	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/metrics"
	"github.com/lojabr/checkout-core/internal/payments"
	"github.com/lojabr/checkout-core/internal/stock"
)

const defaultWriteRetries = 3

type Store interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	GetByExternalID(ctx context.Context, externalID string) (Order, error)
	GetByIntentID(ctx context.Context, intentID string) (Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	// The conditional writers bump the version and report false when the
	// stored version no longer matches expectVersion.
	UpdateStatus(ctx context.Context, id string, to Status, expectVersion int64) (bool, error)
	SetIntent(ctx context.Context, id, intentID string, to Status, expectVersion int64) (bool, error)
	AddRefund(ctx context.Context, id string, amountCents int64, to Status, expectVersion int64) (bool, error)
}

type Gateway interface {
	CreateIntent(ctx context.Context, in payments.CreateIntentInput) (payments.Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (payments.Intent, error)
	CreateRefund(ctx context.Context, orderID, intentID string, amountCents int64) (payments.Refund, error)
}

// Service is the sole writer of order status. Every transition re-reads
// the order, decides, and writes guarded by the version counter, retrying
// a bounded number of times so a user cancel and an in-flight webhook can
// race without lost updates.
type Service struct {
	Store    Store
	Ledger   *stock.Ledger
	Gateway  Gateway
	Fees     *fees.Calculator
	Snap     *checkout.Snapshotter
	Events   Publisher
	Producer string
	Log      *zap.Logger
	Retries  int
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

func (s *Service) retries() int {
	if s.Retries > 0 {
		return s.Retries
	}
	return defaultWriteRetries
}

type CheckoutInput struct {
	ExternalID string
	UserID     string
	Lines      []checkout.CartLine
	Method     fees.Method
	Shipping   Address
}

// Checkout snapshots the cart and persists the order in pending with its
// reservations held. Idempotent on ExternalID: a replayed checkout returns
// the existing order without touching stock again.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (Order, bool, error) {
	if existing, err := s.Store.GetByExternalID(ctx, in.ExternalID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Order{}, false, err
	}

	orderID := uuid.NewString()
	draft, err := s.Snap.Snapshot(ctx, orderID, in.Lines, in.Method)
	if err != nil {
		return Order{}, false, err
	}

	// Totals come from the draft, which re-read catalog prices and ran the
	// fee schedule. Client-supplied amounts are never used.
	now := time.Now().UTC()
	o := Order{
		ID:            orderID,
		ExternalID:    in.ExternalID,
		UserID:        in.UserID,
		Shipping:      in.Shipping,
		Method:        in.Method,
		SubtotalCents: draft.SubtotalCents,
		FeeCents:      draft.FeeCents,
		TotalCents:    draft.TotalCents,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	for _, l := range draft.Lines {
		o.Lines = append(o.Lines, Line(l))
	}

	if err := s.Store.Create(ctx, o); err != nil {
		// Nothing may stay held when order creation aborts.
		if relErr := s.Ledger.ReleaseOrder(ctx, orderID); relErr != nil {
			s.logger().Error("release after failed create", zap.String("order_id", orderID), zap.Error(relErr))
		}
		// A concurrent checkout with the same external id may have won.
		if existing, getErr := s.Store.GetByExternalID(ctx, in.ExternalID); getErr == nil {
			return existing, true, nil
		}
		return Order{}, false, err
	}

	metrics.RecordTransition(string(StatusPending))
	s.emit(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:       o.ID,
		ExternalID:    o.ExternalID,
		UserID:        o.UserID,
		SubtotalCents: o.SubtotalCents,
		FeeCents:      o.FeeCents,
		TotalCents:    o.TotalCents,
		Method:        string(o.Method),
	})
	return o, false, nil
}

// InitiatePayment creates the gateway intent and moves the order to
// awaiting_payment. A transport failure leaves the order pending and is
// safe to retry: the idempotency key collapses retried creates into one
// gateway-side intent. A gateway decline cancels the order and releases
// its reservations.
func (s *Service) InitiatePayment(ctx context.Context, orderID, userID string) (Order, payments.Intent, error) {
	o, err := s.owned(ctx, orderID, userID)
	if err != nil {
		return Order{}, payments.Intent{}, err
	}
	if o.Status != StatusPending && o.Status != StatusAwaitingPayment {
		return Order{}, payments.Intent{}, fmt.Errorf("%w: initiate payment from %s", ErrInvalidTransition, o.Status)
	}

	intent, err := s.Gateway.CreateIntent(ctx, payments.CreateIntentInput{
		OrderID:     o.ID,
		AmountCents: o.TotalCents,
		Method:      o.Method,
	})
	if errors.Is(err, payments.ErrGatewayRejected) {
		if cErr := s.forceCancel(ctx, o.ID, "gateway_rejected"); cErr != nil {
			s.logger().Error("cancel after gateway reject", zap.String("order_id", o.ID), zap.Error(cErr))
		}
		return Order{}, payments.Intent{}, err
	}
	if err != nil {
		return Order{}, payments.Intent{}, err // stays pending, retryable
	}

	for attempt := 0; attempt < s.retries(); attempt++ {
		ok, err := s.Store.SetIntent(ctx, o.ID, intent.ID, StatusAwaitingPayment, o.Version)
		if err != nil {
			return Order{}, payments.Intent{}, err
		}
		if ok {
			o.IntentID = intent.ID
			o.Status = StatusAwaitingPayment
			o.Version++
			metrics.RecordTransition(string(StatusAwaitingPayment))
			return o, intent, nil
		}
		o, err = s.Store.Get(ctx, o.ID)
		if err != nil {
			return Order{}, payments.Intent{}, err
		}
		if o.Status == StatusAwaitingPayment && o.IntentID == intent.ID {
			return o, intent, nil
		}
		if o.Status != StatusPending {
			return Order{}, payments.Intent{}, fmt.Errorf("%w: initiate payment from %s", ErrInvalidTransition, o.Status)
		}
	}
	return Order{}, payments.Intent{}, ErrVersionConflict
}

// ConfirmPayment drives a synchronous confirmation. The webhook remains
// the source of truth; a succeeded confirmation applies the same
// idempotent transition the webhook would.
func (s *Service) ConfirmPayment(ctx context.Context, userID, intentID, paymentMethodID string) (payments.Intent, error) {
	o, err := s.Store.GetByIntentID(ctx, intentID)
	if err != nil {
		return payments.Intent{}, err
	}
	if userID != "" && o.UserID != userID {
		return payments.Intent{}, ErrNotOwner
	}

	intent, err := s.Gateway.ConfirmIntent(ctx, intentID, paymentMethodID)
	if err != nil {
		return payments.Intent{}, err
	}

	switch intent.Status {
	case payments.StatusSucceeded:
		if err := s.OnPaymentSucceeded(ctx, intentID); err != nil {
			return intent, err
		}
	case payments.StatusFailed:
		if err := s.OnPaymentFailed(ctx, intentID); err != nil {
			return intent, err
		}
	}
	return intent, nil
}

// OnPaymentSucceeded moves the order to paid and commits its
// reservations. Idempotent: an order already paid or beyond is a no-op for
// the status, but the commit is re-driven so a transient ledger failure
// after the status write heals on the next delivery.
func (s *Service) OnPaymentSucceeded(ctx context.Context, intentID string) error {
	for attempt := 0; attempt < s.retries(); attempt++ {
		o, err := s.Store.GetByIntentID(ctx, intentID)
		if err != nil {
			return err
		}
		if o.Status.AtLeastPaid() {
			return s.Ledger.CommitOrder(ctx, o.ID)
		}
		if !CanTransition(o.Status, StatusPaid) {
			return fmt.Errorf("%w: payment succeeded for %s order %s", ErrInvalidTransition, o.Status, o.ID)
		}

		ok, err := s.Store.UpdateStatus(ctx, o.ID, StatusPaid, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			continue // raced with a cancel or a duplicate webhook; re-read
		}

		if err := s.Ledger.CommitOrder(ctx, o.ID); err != nil {
			return err
		}
		metrics.RecordTransition(string(StatusPaid))
		s.emit(TopicOrderPaid, EventOrderPaid, o.ID, OrderPaidPayload{
			OrderID:    o.ID,
			IntentID:   intentID,
			TotalCents: o.TotalCents,
		})
		return nil
	}
	return ErrVersionConflict
}

// OnPaymentFailed cancels an order still awaiting payment and releases
// its stock. Any other state is a no-op: a failure webhook arriving after
// success (out-of-order delivery) must not undo a paid order.
func (s *Service) OnPaymentFailed(ctx context.Context, intentID string) error {
	for attempt := 0; attempt < s.retries(); attempt++ {
		o, err := s.Store.GetByIntentID(ctx, intentID)
		if err != nil {
			return err
		}
		if o.Status != StatusAwaitingPayment {
			if o.Status == StatusCancelled {
				// A prior cancel may have failed between the status write
				// and the release; release is idempotent, re-drive it.
				return s.Ledger.ReleaseOrder(ctx, o.ID)
			}
			return nil
		}

		ok, err := s.Store.UpdateStatus(ctx, o.ID, StatusCancelled, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := s.Ledger.ReleaseOrder(ctx, o.ID); err != nil {
			return err
		}
		metrics.RecordTransition(string(StatusCancelled))
		s.emit(TopicOrderCancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{
			OrderID: o.ID,
			Reason:  "payment_failed",
		})
		return nil
	}
	return ErrVersionConflict
}

// Cancel is the user-initiated cancel, allowed only before a terminal
// payment outcome. The version guard makes it race safely against an
// in-flight success webhook: whoever writes first wins, the loser re-reads.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (Order, error) {
	for attempt := 0; attempt < s.retries(); attempt++ {
		o, err := s.owned(ctx, orderID, userID)
		if err != nil {
			return Order{}, err
		}
		if !CanTransition(o.Status, StatusCancelled) {
			if o.Status == StatusCancelled {
				// Finish a half-applied cancel before reporting it.
				if relErr := s.Ledger.ReleaseOrder(ctx, o.ID); relErr != nil {
					return Order{}, relErr
				}
			}
			return Order{}, fmt.Errorf("%w: order is %s", ErrNotCancellable, o.Status)
		}

		ok, err := s.Store.UpdateStatus(ctx, o.ID, StatusCancelled, o.Version)
		if err != nil {
			return Order{}, err
		}
		if !ok {
			continue
		}

		if err := s.Ledger.ReleaseOrder(ctx, o.ID); err != nil {
			return Order{}, err
		}
		o.Status = StatusCancelled
		o.Version++
		metrics.RecordTransition(string(StatusCancelled))
		s.emit(TopicOrderCancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{
			OrderID: o.ID,
			Reason:  "user_cancelled",
		})
		return o, nil
	}
	return Order{}, ErrVersionConflict
}

// forceCancel cancels regardless of owner, used when the gateway rejects
// the intent outright.
func (s *Service) forceCancel(ctx context.Context, orderID, reason string) error {
	for attempt := 0; attempt < s.retries(); attempt++ {
		o, err := s.Store.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return s.Ledger.ReleaseOrder(ctx, o.ID)
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, o.Status)
		}
		ok, err := s.Store.UpdateStatus(ctx, o.ID, StatusCancelled, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.Ledger.ReleaseOrder(ctx, o.ID); err != nil {
			return err
		}
		metrics.RecordTransition(string(StatusCancelled))
		s.emit(TopicOrderCancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{OrderID: o.ID, Reason: reason})
		return nil
	}
	return ErrVersionConflict
}

// Refund refunds part or all of a paid or completed order. A full refund
// moves the order to refunded; partial refunds only accumulate. Stock is
// never restored here: goods may already have shipped, so restock is an
// explicit admin action.
func (s *Service) Refund(ctx context.Context, orderID, userID string, amountCents int64) (Order, payments.Refund, error) {
	o, err := s.owned(ctx, orderID, userID)
	if err != nil {
		return Order{}, payments.Refund{}, err
	}
	if o.Status != StatusPaid && o.Status != StatusCompleted {
		return Order{}, payments.Refund{}, fmt.Errorf("%w: order is %s", ErrNotRefundable, o.Status)
	}

	remaining := o.TotalCents - o.RefundedCents
	if amountCents == 0 {
		amountCents = remaining
	}
	if amountCents < 0 || amountCents > remaining {
		return Order{}, payments.Refund{}, ErrRefundExceeds
	}

	rf, err := s.Gateway.CreateRefund(ctx, o.ID, o.IntentID, amountCents)
	if err != nil {
		return Order{}, payments.Refund{}, err
	}

	for attempt := 0; attempt < s.retries(); attempt++ {
		newTotal := o.RefundedCents + amountCents
		to := o.Status
		if newTotal >= o.TotalCents && CanTransition(o.Status, StatusRefunded) {
			to = StatusRefunded
		}
		ok, err := s.Store.AddRefund(ctx, o.ID, amountCents, to, o.Version)
		if err != nil {
			return Order{}, payments.Refund{}, err
		}
		if ok {
			o.RefundedCents = newTotal
			o.Status = to
			o.Version++
			if to == StatusRefunded {
				metrics.RecordTransition(string(StatusRefunded))
			}
			s.emit(TopicOrderRefunded, EventOrderRefunded, o.ID, OrderRefundedPayload{
				OrderID:       o.ID,
				AmountCents:   amountCents,
				RefundedCents: newTotal,
				Full:          to == StatusRefunded,
			})
			return o, rf, nil
		}
		o, err = s.Store.Get(ctx, o.ID)
		if err != nil {
			return Order{}, payments.Refund{}, err
		}
	}
	return Order{}, payments.Refund{}, ErrVersionConflict
}

// BeginFulfillment moves a paid order into fulfilling. Driven by the
// fulfillment consumer; redelivered events land on the no-op branch.
func (s *Service) BeginFulfillment(ctx context.Context, orderID string) error {
	for attempt := 0; attempt < s.retries(); attempt++ {
		o, err := s.Store.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusFulfilling || o.Status == StatusCompleted {
			return nil
		}
		if !CanTransition(o.Status, StatusFulfilling) {
			return fmt.Errorf("%w: fulfill from %s", ErrInvalidTransition, o.Status)
		}
		ok, err := s.Store.UpdateStatus(ctx, o.ID, StatusFulfilling, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		metrics.RecordTransition(string(StatusFulfilling))
		s.emit(TopicOrderFulfilling, EventOrderFulfilling, o.ID, OrderStatusPayload{OrderID: o.ID, Status: string(StatusFulfilling)})
		return nil
	}
	return ErrVersionConflict
}

// Complete marks a fulfilling order as completed (admin action).
func (s *Service) Complete(ctx context.Context, orderID string) error {
	for attempt := 0; attempt < s.retries(); attempt++ {
		o, err := s.Store.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCompleted {
			return nil
		}
		if !CanTransition(o.Status, StatusCompleted) {
			return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, o.Status)
		}
		ok, err := s.Store.UpdateStatus(ctx, o.ID, StatusCompleted, o.Version)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		metrics.RecordTransition(string(StatusCompleted))
		s.emit(TopicOrderCompleted, EventOrderCompleted, o.ID, OrderStatusPayload{OrderID: o.ID, Status: string(StatusCompleted)})
		return nil
	}
	return ErrVersionConflict
}

func (s *Service) Get(ctx context.Context, orderID, userID string) (Order, error) {
	return s.owned(ctx, orderID, userID)
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListByUser(ctx, userID, limit, offset)
}

// owned loads the order and enforces ownership. An empty userID bypasses
// the check (admin and internal callers).
func (s *Service) owned(ctx context.Context, orderID, userID string) (Order, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if userID != "" && o.UserID != userID {
		return Order{}, ErrNotOwner
	}
	return o, nil
}

func (s *Service) emit(topic, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.logger().Error("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Producer,
		CorrelationID: orderID,
		Payload:       b,
	}
	val, err := json.Marshal(env)
	if err != nil {
		s.logger().Error("marshal event envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.Events.Publish(topic, PartitionKey(orderID), val,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
