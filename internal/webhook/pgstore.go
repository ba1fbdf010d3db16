package webhook

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGEventStore persists processed events in the payment_events table.
type PGEventStore struct {
	DB *pgxpool.Pool
}

func (s *PGEventStore) Insert(ctx context.Context, e Event) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		INSERT INTO payment_events (id, type, intent_id, order_id, orphaned, received_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Type, e.IntentID, e.OrderID, e.Orphaned, e.ReceivedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGEventStore) MarkOrphaned(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, `UPDATE payment_events SET orphaned = TRUE WHERE id = $1`, id)
	return err
}
