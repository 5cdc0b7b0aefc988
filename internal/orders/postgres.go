package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) Create(ctx context.Context, o *Order, lines []Line, ev StatusEvent) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(
			id, customer_id, status, payment_status,
			subtotal, tax_amount, shipping_amount, discount_amount, total_amount,
			currency, shipping_address_ref, billing_address_ref,
			reservation_token, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8::numeric,$9::numeric,
		        $10,$11,$12,$13,$14,$15)`,
		o.ID, o.CustomerID, string(o.Status), string(o.PaymentStatus),
		o.Subtotal.String(), o.TaxAmount.String(), o.ShippingAmount.String(),
		o.DiscountAmount.String(), o.TotalAmount.String(),
		o.Currency, o.ShippingAddressRef, o.BillingAddressRef,
		o.ReservationToken, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, sku, name, unit_price, quantity, line_total)
			VALUES ($1,$2,$3,$4::numeric,$5,$6::numeric)`,
			o.ID, l.SKU, l.Name, l.UnitPrice.String(), l.Quantity, l.LineTotal.String()); err != nil {
			return err
		}
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev StatusEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_events(order_id, status, occurred_at, actor, notes)
		VALUES ($1,$2,$3,$4,$5)`,
		ev.OrderID, string(ev.Status), ev.At, ev.Actor, ev.Notes)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	var (
		o                                   Order
		status, payStatus                   string
		sub, tax, ship, disc, total         string
		confirmedAt, shippedAt, deliveredAt *time.Time
	)
	err := s.DB.QueryRow(ctx, `
		SELECT id, customer_id, status, payment_status,
		       subtotal::text, tax_amount::text, shipping_amount::text,
		       discount_amount::text, total_amount::text,
		       currency, shipping_address_ref, billing_address_ref,
		       reservation_token, created_at, updated_at,
		       confirmed_at, shipped_at, delivered_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.CustomerID, &status, &payStatus,
		&sub, &tax, &ship, &disc, &total,
		&o.Currency, &o.ShippingAddressRef, &o.BillingAddressRef,
		&o.ReservationToken, &o.CreatedAt, &o.UpdatedAt,
		&confirmedAt, &shippedAt, &deliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status, o.PaymentStatus = Status(status), PaymentStatus(payStatus)
	o.ConfirmedAt, o.ShippedAt, o.DeliveredAt = confirmedAt, shippedAt, deliveredAt
	if o.Subtotal, err = decimal.NewFromString(sub); err != nil {
		return nil, err
	}
	if o.TaxAmount, err = decimal.NewFromString(tax); err != nil {
		return nil, err
	}
	if o.ShippingAmount, err = decimal.NewFromString(ship); err != nil {
		return nil, err
	}
	if o.DiscountAmount, err = decimal.NewFromString(disc); err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) Lines(ctx context.Context, id string) ([]Line, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, sku, name, unit_price::text, quantity, line_total::text
		FROM order_lines WHERE order_id=$1 ORDER BY sku`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var (
			l           Line
			unit, total string
		)
		if err := rows.Scan(&l.OrderID, &l.SKU, &l.Name, &unit, &l.Quantity, &total); err != nil {
			return nil, err
		}
		if l.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if l.LineTotal, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Events(ctx context.Context, id string) ([]StatusEvent, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, status, occurred_at, actor, notes
		FROM order_status_events WHERE order_id=$1 ORDER BY occurred_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusEvent
	for rows.Next() {
		var (
			ev     StatusEvent
			status string
		)
		if err := rows.Scan(&ev.OrderID, &status, &ev.At, &ev.Actor, &ev.Notes); err != nil {
			return nil, err
		}
		ev.Status = Status(status)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status, ev StatusEvent) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stampCol := ""
	switch to {
	case StatusConfirmed:
		stampCol = ", confirmed_at = $4"
	case StatusShipped:
		stampCol = ", shipped_at = $4"
	case StatusDelivered:
		stampCol = ", delivered_at = $4"
	}
	args := []any{id, string(from), string(to)}
	q := `UPDATE orders SET status = $3, updated_at = now()` + stampCol + ` WHERE id = $1 AND status = $2`
	if stampCol != "" {
		args = append(args, ev.At)
	}
	ct, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a missing order from a lost compare-and-set.
		var cur string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrStaleStatus
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SetPaymentStatus(ctx context.Context, id string, ps PaymentStatus) error {
	ct, err := s.DB.Exec(ctx,
		`UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1`,
		id, string(ps))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) StalePending(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id FROM orders WHERE status=$1 AND created_at < $2`,
		string(StatusPending), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
