// Package gateway defines the contract between the payment state machine and
// the provider adapters in its subpackages.
package gateway

import (
	"context"
	"fmt"

	"water-service/internal/models"
)

// CheckoutBuilder produces the provider-specific redirect for a payment
type CheckoutBuilder interface {
	Provider() models.PaymentProvider
	CheckoutURL(p *models.Payment) (string, error)
}

// Settlement is the provider-independent payment state machine the
// adapters drive. Every transition is safe to repeat: when the payment is
// already in the target state (for the same provider transaction) the
// current payment is returned without error. A transition from any other
// state returns models.ErrConflict.
type Settlement interface {
	GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error)
	GetPaymentByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (*models.Payment, error)

	// BeginPayment moves PENDING -> PROCESSING and records the provider's id
	BeginPayment(ctx context.Context, txID, externalID string) (*models.Payment, error)
	// CompletePayment moves PROCESSING -> COMPLETED and activates the subscription
	CompletePayment(ctx context.Context, txID string) (*models.Payment, error)
	// AbortPayment moves PENDING/PROCESSING -> CANCELLED
	AbortPayment(ctx context.Context, txID, reason string) (*models.Payment, error)
	// FailPayment moves PENDING/PROCESSING -> FAILED
	FailPayment(ctx context.Context, txID, reason string) (*models.Payment, error)
}

// CheckAmount compares a provider-reported amount in minor units with the
// ledger. The error never carries either amount.
func CheckAmount(p *models.Payment, reported int64) error {
	if p.Amount != reported {
		return fmt.Errorf("payment %s: %w", p.TransactionID, models.ErrAmountMismatch)
	}
	return nil
}
