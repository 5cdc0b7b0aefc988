package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger stores stock in Postgres. Rows are locked with
// SELECT ... FOR UPDATE in SKU order, so concurrent multi-item
// reservations serialize per SKU without circular wait.
type PostgresLedger struct {
	DB         *pgxpool.Pool
	OnLowStock LowStockFunc
}

func (l *PostgresLedger) SetStock(ctx context.Context, sku string, quantity, lowStockThreshold int) error {
	_, err := l.DB.Exec(ctx, `
		INSERT INTO inventory(sku, available, low_stock_threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (sku) DO UPDATE
		SET available = EXCLUDED.available,
		    low_stock_threshold = EXCLUDED.low_stock_threshold`,
		sku, quantity, lowStockThreshold)
	return err
}

func (l *PostgresLedger) Available(ctx context.Context, sku string) (int, error) {
	var n int
	err := l.DB.QueryRow(ctx, `SELECT available FROM inventory WHERE sku=$1`, sku).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapSKU(ErrUnknownSKU, sku)
	}
	return n, err
}

func (l *PostgresLedger) Reserve(ctx context.Context, items []ItemQuantity) (string, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return "", err
	}
	skus := make([]string, 0, len(merged))
	for sku := range merged {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock rows one at a time in SKU order, validating before mutating.
	type locked struct {
		sku       string
		available int
		threshold int
	}
	rows := make([]locked, 0, len(skus))
	for _, sku := range skus {
		var lr locked
		lr.sku = sku
		err := tx.QueryRow(ctx,
			`SELECT available, low_stock_threshold FROM inventory WHERE sku=$1 FOR UPDATE`,
			sku).Scan(&lr.available, &lr.threshold)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", wrapSKU(ErrUnknownSKU, sku)
		}
		if err != nil {
			return "", err
		}
		if lr.available < merged[sku] {
			return "", &StockError{SKU: sku, Requested: merged[sku], Available: lr.available}
		}
		rows = append(rows, lr)
	}

	token := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_reservations(token, status) VALUES ($1, 'RESERVED')`,
		token); err != nil {
		return "", err
	}

	var low []ItemQuantity
	for _, lr := range rows {
		qty := merged[lr.sku]
		if _, err := tx.Exec(ctx,
			`UPDATE inventory SET available = available - $2 WHERE sku=$1`,
			lr.sku, qty); err != nil {
			return "", err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO inventory_reservation_items(token, sku, quantity)
			VALUES ($1, $2, $3)`,
			token, lr.sku, qty); err != nil {
			return "", err
		}
		if remaining := lr.available - qty; remaining <= lr.threshold {
			low = append(low, ItemQuantity{SKU: lr.sku, Quantity: remaining})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	if l.OnLowStock != nil {
		for _, it := range low {
			l.OnLowStock(it.SKU, it.Quantity)
		}
	}
	return token, nil
}

func (l *PostgresLedger) Commit(ctx context.Context, token string) error {
	ct, err := l.DB.Exec(ctx, `
		UPDATE inventory_reservations SET status='COMMITTED'
		WHERE token=$1 AND status IN ('RESERVED','COMMITTED')`, token)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var status string
		err := l.DB.QueryRow(ctx,
			`SELECT status FROM inventory_reservations WHERE token=$1`, token).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		return ErrReservationState
	}
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, token string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM inventory_reservations WHERE token=$1 FOR UPDATE`,
		token).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrReservationNotFound
	}
	if err != nil {
		return err
	}
	if status == string(ReservationReleased) {
		return nil // idempotent
	}

	if _, err := tx.Exec(ctx, `
		UPDATE inventory i
		SET available = i.available + r.quantity
		FROM inventory_reservation_items r
		WHERE r.token = $1 AND r.sku = i.sku`, token); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE inventory_reservations SET status='RELEASED' WHERE token=$1`,
		token); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
