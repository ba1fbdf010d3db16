package orders

import "errors"

// ErrInvalidTransition marks a transition attempted from a state that does
// not allow it. It is a consistency violation, not a validation error, and
// is never silently swallowed.
var ErrInvalidTransition = errors.New("orders: invalid status transition")

type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusFulfilling      Status = "fulfilling"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusRefunded        Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:         {StatusAwaitingPayment: true, StatusCancelled: true},
	StatusAwaitingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:            {StatusFulfilling: true, StatusRefunded: true},
	StatusFulfilling:      {StatusCompleted: true},
	StatusCompleted:       {StatusRefunded: true},
	StatusCancelled:       {},
	StatusRefunded:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

// AtLeastPaid reports whether the order reached paid or a later state on
// the success path. Used for idempotent webhook handling.
func (s Status) AtLeastPaid() bool {
	switch s {
	case StatusPaid, StatusFulfilling, StatusCompleted, StatusRefunded:
		return true
	}
	return false
}
