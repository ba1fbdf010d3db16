package orders

import (
	"errors"
	"time"

	"github.com/lojabr/checkout-core/internal/fees"
)

var (
	ErrNotFound         = errors.New("orders: order not found")
	ErrNotOwner         = errors.New("orders: order belongs to another user")
	ErrVersionConflict  = errors.New("orders: concurrent update, retries exhausted")
	ErrNotCancellable   = errors.New("orders: order can no longer be cancelled")
	ErrNotRefundable    = errors.New("orders: order is not refundable")
	ErrRefundExceeds    = errors.New("orders: refund exceeds remaining paid amount")
	ErrNoPaymentPending = errors.New("orders: order is not awaiting a payment intent")
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// Line is copied from the cart draft at creation time and never mutated,
// so historical orders keep the price the buyer saw.
type Line struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Order struct {
	ID            string      `json:"id"`
	ExternalID    string      `json:"external_id"`
	UserID        string      `json:"user_id"`
	Lines         []Line      `json:"lines"`
	Shipping      Address     `json:"shipping_address"`
	Method        fees.Method `json:"payment_method"`
	SubtotalCents int64       `json:"subtotal_cents"`
	FeeCents      int64       `json:"fee_cents"`
	TotalCents    int64       `json:"total_cents"`
	RefundedCents int64       `json:"refunded_cents"`
	Status        Status      `json:"status"`
	IntentID      string      `json:"gateway_payment_intent_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Version       int64       `json:"-"`
}
