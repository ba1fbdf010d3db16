package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/stock"
)

var ErrEmptyCart = errors.New("checkout: cart is empty")

// CartUnavailableError reports the first cart line that could not be
// reserved. When it is returned, no reservation from the attempt remains
// held.
type CartUnavailableError struct {
	ProductID string
	Err       error
}

func (e *CartUnavailableError) Error() string {
	return fmt.Sprintf("checkout: cart unavailable, product %s: %v", e.ProductID, e.Err)
}

func (e *CartUnavailableError) Unwrap() error { return e.Err }

type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type DraftLine struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Draft is the immutable, priced image of a cart at order-creation time.
// Prices are re-read from the catalog when the draft is taken, so later
// catalog changes never leak into the order.
type Draft struct {
	OrderID       string
	Method        fees.Method
	Lines         []DraftLine
	Reservations  []stock.Reservation
	SubtotalCents int64
	FeeCents      int64
	TotalCents    int64
	TakenAt       time.Time
}

type Snapshotter struct {
	Ledger *stock.Ledger
	Fees   *fees.Calculator
}

// Snapshot re-prices every cart line and reserves its stock. The attempt is
// all-or-nothing: the first line that cannot be reserved releases every
// reservation taken so far and fails with CartUnavailableError.
func (s *Snapshotter) Snapshot(ctx context.Context, orderID string, cart []CartLine, method fees.Method) (Draft, error) {
	if len(cart) == 0 {
		return Draft{}, ErrEmptyCart
	}

	d := Draft{
		OrderID: orderID,
		Method:  method,
		TakenAt: time.Now().UTC(),
	}

	for _, line := range cart {
		p, err := s.Ledger.Products.Get(ctx, line.ProductID)
		if err != nil {
			s.rollback(ctx, d.Reservations)
			return Draft{}, &CartUnavailableError{ProductID: line.ProductID, Err: err}
		}

		r, err := s.Ledger.Reserve(ctx, orderID, line.ProductID, line.Qty)
		if err != nil {
			s.rollback(ctx, d.Reservations)
			return Draft{}, &CartUnavailableError{ProductID: line.ProductID, Err: err}
		}
		d.Reservations = append(d.Reservations, r)

		d.Lines = append(d.Lines, DraftLine{
			ProductID:      p.ID,
			SKU:            p.SKU,
			Name:           p.Name,
			Qty:            line.Qty,
			UnitPriceCents: p.PriceCents,
		})
		d.SubtotalCents += p.PriceCents * int64(line.Qty)
	}

	fee, err := s.Fees.Compute(d.SubtotalCents, method)
	if err != nil {
		s.rollback(ctx, d.Reservations)
		return Draft{}, err
	}
	d.FeeCents = fee
	d.TotalCents = d.SubtotalCents + fee
	return d, nil
}

func (s *Snapshotter) rollback(ctx context.Context, taken []stock.Reservation) {
	for _, r := range taken {
		_ = s.Ledger.Release(ctx, r.ID)
	}
}
