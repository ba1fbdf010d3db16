package orders

import (
	"context"
	"sync"
	"time"
)

// MemStore is the in-memory Store used by unit tests and local tooling.
// It enforces the same version-guard contract as the Postgres repo.
type MemStore struct {
	mu     sync.Mutex
	orders map[string]Order
	seq    []string
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[string]Order)}
}

func (s *MemStore) Create(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	s.seq = append(s.seq, o.ID)
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemStore) GetByExternalID(_ context.Context, externalID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ExternalID == externalID {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (s *MemStore) GetByIntentID(_ context.Context, intentID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if intentID == "" {
		return Order{}, ErrNotFound
	}
	for _, o := range s.orders {
		if o.IntentID == intentID {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (s *MemStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Order
	for i := len(s.seq) - 1; i >= 0; i-- {
		if o := s.orders[s.seq[i]]; o.UserID == userID {
			all = append(all, o)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id string, to Status, expectVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Version != expectVersion {
		return false, nil
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return true, nil
}

func (s *MemStore) SetIntent(_ context.Context, id, intentID string, to Status, expectVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Version != expectVersion {
		return false, nil
	}
	o.IntentID = intentID
	o.Status = to
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return true, nil
}

func (s *MemStore) AddRefund(_ context.Context, id string, amountCents int64, to Status, expectVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Version != expectVersion {
		return false, nil
	}
	o.RefundedCents += amountCents
	o.Status = to
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return true, nil
}
