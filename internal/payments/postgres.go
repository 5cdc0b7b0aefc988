package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payments(
			id, order_id, amount, currency, method, status,
			external_ref, failure_reason, created_at)
		VALUES ($1,$2,$3::numeric,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.OrderID, p.Amount.String(), p.Currency, p.Method, string(p.Status),
		p.ExternalRef, p.FailureReason, p.CreatedAt)
	return err
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p      Payment
		status string
		amount string
	)
	err := row.Scan(&p.ID, &p.OrderID, &amount, &p.Currency, &p.Method, &status,
		&p.ExternalRef, &p.FailureReason, &p.CreatedAt, &p.ProcessedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &p, nil
}

const paymentCols = `id, order_id, amount::text, currency, method, status,
	external_ref, failure_reason, created_at, processed_at, completed_at`

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return scanPayment(s.DB.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id=$1`, id))
}

func (s *PostgresStore) PaymentsByOrder(ctx context.Context, orderID string) ([]*Payment, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdatePayment(ctx context.Context, p *Payment, from Status) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payments
		SET status=$3, external_ref=$4, failure_reason=$5,
		    processed_at=$6, completed_at=$7
		WHERE id=$1 AND status=$2`,
		p.ID, string(from), string(p.Status), p.ExternalRef, p.FailureReason,
		p.ProcessedAt, p.CompletedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var cur string
		err := s.DB.QueryRow(ctx, `SELECT status FROM payments WHERE id=$1`, p.ID).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (s *PostgresStore) CreateRefund(ctx context.Context, r *Refund) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO refunds(
			id, payment_id, amount, currency, status, reason,
			external_ref, failure_reason, created_at)
		VALUES ($1,$2,$3::numeric,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.PaymentID, r.Amount.String(), r.Currency, string(r.Status), r.Reason,
		r.ExternalRef, r.FailureReason, r.CreatedAt)
	return err
}

const refundCols = `id, payment_id, amount::text, currency, status, reason,
	external_ref, failure_reason, created_at, processed_at, completed_at`

func scanRefund(row pgx.Row) (*Refund, error) {
	var (
		r      Refund
		status string
		amount string
	)
	err := row.Scan(&r.ID, &r.PaymentID, &amount, &r.Currency, &status, &r.Reason,
		&r.ExternalRef, &r.FailureReason, &r.CreatedAt, &r.ProcessedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = RefundStatus(status)
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetRefund(ctx context.Context, id string) (*Refund, error) {
	return scanRefund(s.DB.QueryRow(ctx,
		`SELECT `+refundCols+` FROM refunds WHERE id=$1`, id))
}

func (s *PostgresStore) RefundsByPayment(ctx context.Context, paymentID string) ([]*Refund, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+refundCols+` FROM refunds WHERE payment_id=$1 ORDER BY created_at`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateRefund(ctx context.Context, r *Refund, from RefundStatus) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE refunds
		SET status=$3, external_ref=$4, failure_reason=$5,
		    processed_at=$6, completed_at=$7
		WHERE id=$1 AND status=$2`,
		r.ID, string(from), string(r.Status), r.ExternalRef, r.FailureReason,
		r.ProcessedAt, r.CompletedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var cur string
		err := s.DB.QueryRow(ctx, `SELECT status FROM refunds WHERE id=$1`, r.ID).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRefundNotFound
		}
		if err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}
