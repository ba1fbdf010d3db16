package stock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound         = errors.New("stock: product not found")
	ErrReservationNotFound     = errors.New("stock: reservation not found")
	ErrInsufficientStock       = errors.New("stock: insufficient stock")
	ErrStockConflict           = errors.New("stock: concurrent stock update, retries exhausted")
	ErrInvalidQuantity         = errors.New("stock: quantity must be greater than zero")
	ErrInvalidReservationState = errors.New("stock: invalid reservation state")
)

// Product carries the slice of the catalog the ledger is allowed to touch:
// the available quantity and its version counter. Price rides along so
// checkout can re-read it in the same lookup.
type Product struct {
	ID         string
	SKU        string
	Name       string
	PriceCents int64
	Available  int
	Version    int64
	UpdatedAt  time.Time
}

type ReservationState string

const (
	StateHeld      ReservationState = "held"
	StateCommitted ReservationState = "committed"
	StateReleased  ReservationState = "released"
)

// Reservation is a temporary hold on inventory tied to one order. Stock is
// decremented when the reservation is created; commit makes the decrement
// permanent, release gives it back. Each reservation leaves the held state
// exactly once.
type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Qty       int
	State     ReservationState
	CreatedAt time.Time
}

type ProductStore interface {
	Get(ctx context.Context, id string) (Product, error)
	// AdjustAvailable applies delta only when the stored version still
	// matches expectVersion, bumping the version on success. Returns false
	// when a concurrent writer got there first.
	AdjustAvailable(ctx context.Context, id string, delta int, expectVersion int64) (bool, error)
	// Restore increments availability unconditionally. Used for release
	// and explicit restock, where no precondition beyond existence applies.
	Restore(ctx context.Context, id string, qty int) error
}

type ReservationStore interface {
	Create(ctx context.Context, r Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]Reservation, error)
	// SetState transitions from -> to and reports whether the row matched.
	SetState(ctx context.Context, id string, from, to ReservationState) (bool, error)
}
