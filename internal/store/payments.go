package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"water-service/internal/models"

	"github.com/lib/pq"
)

const paymentColumns = `id, transaction_id, external_id, firm_id, type, provider, amount, status,
	plan_id, billing_period, metadata, error_message, processing_at, completed_at, cancelled_at,
	created_at, updated_at`

func statusArray(statuses []models.PaymentStatus) interface{} {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return pq.Array(out)
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (transaction_id, firm_id, type, provider, amount, status, plan_id, billing_period, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + paymentColumns

	return s.db.GetContext(ctx, payment, query,
		payment.TransactionID, payment.FirmID, payment.Type, payment.Provider, payment.Amount,
		payment.Status, payment.PlanID, payment.BillingPeriod, payment.Metadata)
}

// GetPaymentByTransactionID retrieves a payment by its correlation key
func (s *Store) GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	return s.getPayment(ctx, "SELECT "+paymentColumns+" FROM payments WHERE transaction_id = $1", txID)
}

// GetPaymentByExternalID retrieves a payment by the provider's own id
func (s *Store) GetPaymentByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (*models.Payment, error) {
	return s.getPayment(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE provider = $1 AND external_id = $2",
		provider, externalID)
}

func (s *Store) getPayment(ctx context.Context, query string, args ...interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPaymentsByFirm returns a firm's payments newest first
func (s *Store) ListPaymentsByFirm(ctx context.Context, firmID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments WHERE firm_id = $1 ORDER BY created_at DESC, id DESC",
		firmID)
	return payments, err
}

// TransitionPayment moves a payment to status `to` only if its current
// status is one of from. ErrStaleTransition means the predicate failed.
// The timestamp column matching `to` is stamped with change.At.
func (s *Store) TransitionPayment(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus, change models.PaymentChange) (*models.Payment, error) {
	var stamp string
	switch to {
	case models.PaymentStatusProcessing:
		stamp = ", processing_at = $5"
	case models.PaymentStatusCancelled:
		stamp = ", cancelled_at = $5"
	case models.PaymentStatusCompleted:
		stamp = ", completed_at = $5"
	}

	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		`UPDATE payments SET status = $2,
			external_id = COALESCE($3, external_id),
			error_message = COALESCE($4, error_message),
			updated_at = $5`+stamp+`
		WHERE id = $1 AND status = ANY($6)
		RETURNING `+paymentColumns,
		id, to, change.ExternalID, change.ErrorMessage, change.At, statusArray(from))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrStaleTransition
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("payment %d: external id already bound: %w", id, models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CompletePayment moves a payment to COMPLETED and applies the subscription
// activation in the same transaction. If the payment is no longer in one of
// the from statuses nothing is written and ErrStaleTransition is returned.
func (s *Store) CompletePayment(ctx context.Context, id int64, from []models.PaymentStatus, change models.PaymentChange, act *models.Activation) (*models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var payment models.Payment
	err = tx.GetContext(ctx, &payment,
		`UPDATE payments SET status = $2,
			external_id = COALESCE($3, external_id),
			completed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)
		RETURNING `+paymentColumns,
		id, models.PaymentStatusCompleted, change.ExternalID, change.At, statusArray(from))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrStaleTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete payment: %w", err)
	}

	if act != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE firms SET subscription_status = $2, trial_end_at = $3, updated_at = NOW()
			WHERE id = $1`,
			act.FirmID, models.SubscriptionStatus(act.Plan), act.Until)
		if err != nil {
			return nil, fmt.Errorf("failed to activate subscription: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n != 1 {
			return nil, fmt.Errorf("activate subscription for firm %d: %w", act.FirmID, models.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &payment, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
