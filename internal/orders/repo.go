package orders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lojabr/checkout-core/internal/fees"
)

// Repo persists orders in Postgres. The order row carries the version
// counter; lines are immutable child rows written once at creation. The
// shipping address is stored as jsonb.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, external_id, user_id, payment_method, subtotal_cents, fee_cents,
	total_cents, refunded_cents, status, COALESCE(intent_id, ''), shipping_address,
	created_at, updated_at, version`

func (r *Repo) Create(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	addr, err := json.Marshal(o.Shipping)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, payment_method, subtotal_cents,
			fee_cents, total_cents, refunded_cents, status, shipping_address,
			created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10,$10,$11)`,
		o.ID, o.ExternalID, o.UserID, string(o.Method), o.SubtotalCents,
		o.FeeCents, o.TotalCents, string(o.Status), addr, o.CreatedAt, o.Version)
	if err != nil {
		return err
	}

	for _, l := range o.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, product_id, sku, name, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, l.ProductID, l.SKU, l.Name, l.Qty, l.UnitPriceCents)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return r.getBy(ctx, `WHERE id=$1`, id)
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (Order, error) {
	return r.getBy(ctx, `WHERE external_id=$1`, externalID)
}

func (r *Repo) GetByIntentID(ctx context.Context, intentID string) (Order, error) {
	return r.getBy(ctx, `WHERE intent_id=$1`, intentID)
}

func (r *Repo) getBy(ctx context.Context, where string, arg any) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = r.lines(ctx, o.ID)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) lines(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, sku, name, qty, unit_price_cents
		FROM order_lines WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.SKU, &l.Name, &l.Qty, &l.UnitPriceCents); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = r.lines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status, expectVersion int64) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now(), version=version+1
		WHERE id=$1 AND version=$3`,
		id, string(to), expectVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) SetIntent(ctx context.Context, id, intentID string, to Status, expectVersion int64) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET intent_id=$2, status=$3, updated_at=now(), version=version+1
		WHERE id=$1 AND version=$4`,
		id, intentID, string(to), expectVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) AddRefund(ctx context.Context, id string, amountCents int64, to Status, expectVersion int64) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET refunded_cents=refunded_cents+$2, status=$3,
			updated_at=now(), version=version+1
		WHERE id=$1 AND version=$4`,
		id, amountCents, string(to), expectVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var method, status string
	var addr []byte
	err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &method, &o.SubtotalCents,
		&o.FeeCents, &o.TotalCents, &o.RefundedCents, &status, &o.IntentID,
		&addr, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return Order{}, err
	}
	o.Method = fees.Method(method)
	o.Status = Status(status)
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.Shipping); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}
