package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGProductStore reads product price/stock and applies version-guarded
// stock updates. Only stock and version are ever mutated here; the rest of
// the product row belongs to the catalog.
type PGProductStore struct{ DB *pgxpool.Pool }

func (s *PGProductStore) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, sku, name, price_cents, available, version, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Available, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PGProductStore) AdjustAvailable(ctx context.Context, id string, delta int, expectVersion int64) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products
		SET available = available + $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3 AND available + $2 >= 0`,
		id, delta, expectVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PGProductStore) Restore(ctx context.Context, id string, qty int) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products
		SET available = available + $2, version = version + 1, updated_at = now()
		WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return nil
}

type PGReservationStore struct{ DB *pgxpool.Pool }

func (s *PGReservationStore) Create(ctx context.Context, r Reservation) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reservations(id, order_id, product_id, qty, state)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.OrderID, r.ProductID, r.Qty, string(r.State))
	return err
}

func (s *PGReservationStore) Get(ctx context.Context, id string) (Reservation, error) {
	var r Reservation
	var state string
	err := s.DB.QueryRow(ctx, `
		SELECT id, order_id, product_id, qty, state, created_at
		FROM reservations WHERE id=$1`, id).
		Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Qty, &state, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationNotFound
	}
	if err != nil {
		return Reservation{}, err
	}
	r.State = ReservationState(state)
	return r, nil
}

func (s *PGReservationStore) ListByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, qty, state, created_at
		FROM reservations WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		var state string
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Qty, &state, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.State = ReservationState(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGReservationStore) SetState(ctx context.Context, id string, from, to ReservationState) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE reservations SET state=$3 WHERE id=$1 AND state=$2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
