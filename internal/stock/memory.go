package stock

import (
	"context"
	"sync"
	"time"
)

// In-memory stores backing unit tests and local development. They honor
// the same version-counter contract as the Postgres stores.

type MemProductStore struct {
	mu       sync.Mutex
	products map[string]Product
}

func NewMemProductStore(products ...Product) *MemProductStore {
	s := &MemProductStore{products: make(map[string]Product)}
	for _, p := range products {
		if p.Version == 0 {
			p.Version = 1
		}
		s.products[p.ID] = p
	}
	return s
}

func (s *MemProductStore) Get(_ context.Context, id string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (s *MemProductStore) AdjustAvailable(_ context.Context, id string, delta int, expectVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return false, ErrProductNotFound
	}
	if p.Version != expectVersion || p.Available+delta < 0 {
		return false, nil
	}
	p.Available += delta
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return true, nil
}

func (s *MemProductStore) Restore(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Available += qty
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return nil
}

type MemReservationStore struct {
	mu           sync.Mutex
	reservations map[string]Reservation
	order        []string
}

func NewMemReservationStore() *MemReservationStore {
	return &MemReservationStore{reservations: make(map[string]Reservation)}
}

func (s *MemReservationStore) Create(_ context.Context, r Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.reservations[r.ID] = r
	s.order = append(s.order, r.ID)
	return nil
}

func (s *MemReservationStore) Get(_ context.Context, id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return r, nil
}

func (s *MemReservationStore) ListByOrder(_ context.Context, orderID string) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, id := range s.order {
		if r := s.reservations[id]; r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemReservationStore) SetState(_ context.Context, id string, from, to ReservationState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || r.State != from {
		return false, nil
	}
	r.State = to
	s.reservations[id] = r
	return true, nil
}
