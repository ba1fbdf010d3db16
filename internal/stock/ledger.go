package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const defaultMaxRetries = 3

// Ledger owns every stock mutation. Writers never hold locks: each reserve
// reads the product version, writes conditionally and retries the whole
// read-decide-write loop a bounded number of times before giving up with
// ErrStockConflict.
type Ledger struct {
	Products     ProductStore
	Reservations ReservationStore
	MaxRetries   int
}

func NewLedger(ps ProductStore, rs ReservationStore) *Ledger {
	return &Ledger{Products: ps, Reservations: rs, MaxRetries: defaultMaxRetries}
}

func (l *Ledger) retries() int {
	if l.MaxRetries > 0 {
		return l.MaxRetries
	}
	return defaultMaxRetries
}

// Reserve decrements availability and records a held reservation for the
// order. ErrInsufficientStock never changes availability.
func (l *Ledger) Reserve(ctx context.Context, orderID, productID string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}

	for attempt := 0; attempt < l.retries(); attempt++ {
		p, err := l.Products.Get(ctx, productID)
		if err != nil {
			return Reservation{}, err
		}
		if p.Available < qty {
			return Reservation{}, fmt.Errorf("%w: product %s has %d, need %d", ErrInsufficientStock, productID, p.Available, qty)
		}

		ok, err := l.Products.AdjustAvailable(ctx, productID, -qty, p.Version)
		if err != nil {
			return Reservation{}, err
		}
		if !ok {
			continue // lost the race, re-read and retry
		}

		r := Reservation{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: productID,
			Qty:       qty,
			State:     StateHeld,
		}
		if err := l.Reservations.Create(ctx, r); err != nil {
			// Undo the decrement so no stock leaks on a failed insert.
			_ = l.Products.Restore(ctx, productID, qty)
			return Reservation{}, err
		}
		return r, nil
	}
	return Reservation{}, ErrStockConflict
}

// Commit makes a held reservation permanent. The stock was already
// decremented at reserve time, so no quantity changes. Committing an
// already-committed reservation is a no-op.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	ok, err := l.Reservations.SetState(ctx, reservationID, StateHeld, StateCommitted)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	r, err := l.Reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if r.State == StateCommitted {
		return nil
	}
	return fmt.Errorf("%w: cannot commit %s reservation %s", ErrInvalidReservationState, r.State, reservationID)
}

// Release returns a held reservation's quantity to availability. Releasing
// an already-released reservation is a no-op; a committed reservation
// cannot be released (restock after commit is an explicit admin action).
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	ok, err := l.Reservations.SetState(ctx, reservationID, StateHeld, StateReleased)
	if err != nil {
		return err
	}
	if !ok {
		r, err := l.Reservations.Get(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.State == StateReleased {
			return nil
		}
		return fmt.Errorf("%w: cannot release %s reservation %s", ErrInvalidReservationState, r.State, reservationID)
	}

	r, err := l.Reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	return l.Products.Restore(ctx, r.ProductID, r.Qty)
}

// CommitOrder commits every held reservation of the order.
func (l *Ledger) CommitOrder(ctx context.Context, orderID string) error {
	rs, err := l.Reservations.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.State != StateHeld {
			continue
		}
		if err := l.Commit(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseOrder releases every held reservation of the order. Safe to call
// on orders whose reservations have already been released.
func (l *Ledger) ReleaseOrder(ctx context.Context, orderID string) error {
	rs, err := l.Reservations.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.State != StateHeld {
			continue
		}
		if err := l.Release(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// Restock puts quantity back into availability. Committed reservations
// never restore stock on their own; a refund that should return goods to
// the shelf goes through here explicitly.
func (l *Ledger) Restock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.Products.Restore(ctx, productID, qty)
}
