// Package gatewaytest provides an in-memory gateway.Settlement for adapter
// tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"water-service/internal/gateway"
	"water-service/internal/models"
)

// Settlement keeps payments in memory and follows the gateway.Settlement
// contract. Completions are counted so tests can check activations.
type Settlement struct {
	mu          sync.Mutex
	byTx        map[string]*models.Payment
	nextID      int64
	Now         func() time.Time
	Completions map[string]int
}

var _ gateway.Settlement = (*Settlement)(nil)

// New creates an empty settlement
func New() *Settlement {
	return &Settlement{
		byTx:        make(map[string]*models.Payment),
		Now:         time.Now,
		Completions: make(map[string]int),
	}
}

// Add stores a PENDING payment and returns it
func (s *Settlement) Add(txID string, provider models.PaymentProvider, amount int64) *models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := &models.Payment{
		ID:            s.nextID,
		TransactionID: txID,
		FirmID:        1,
		Type:          models.PaymentTypeSubscription,
		Provider:      provider,
		Amount:        amount,
		Status:        models.PaymentStatusPending,
		PlanID:        models.PlanPro,
		BillingPeriod: models.BillingMonthly,
		CreatedAt:     s.Now(),
	}
	s.byTx[txID] = p
	return copyOf(p)
}

// Get returns a copy of the payment
func (s *Settlement) Get(txID string) *models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byTx[txID]; ok {
		return copyOf(p)
	}
	return nil
}

func (s *Settlement) GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	if p := s.Get(txID); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("payment %s: %w", txID, models.ErrNotFound)
}

func (s *Settlement) GetPaymentByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byTx {
		if p.Provider == provider && p.ExternalID != nil && *p.ExternalID == externalID {
			return copyOf(p), nil
		}
	}
	return nil, fmt.Errorf("external %s: %w", externalID, models.ErrNotFound)
}

func (s *Settlement) BeginPayment(ctx context.Context, txID, externalID string) (*models.Payment, error) {
	return s.move(txID, func(p *models.Payment) error {
		if p.Status == models.PaymentStatusProcessing && p.ExternalID != nil && *p.ExternalID == externalID {
			return nil
		}
		if p.Status != models.PaymentStatusPending {
			return models.ErrConflict
		}
		now := s.Now()
		p.Status = models.PaymentStatusProcessing
		p.ExternalID = &externalID
		p.ProcessingAt = &now
		return nil
	})
}

func (s *Settlement) CompletePayment(ctx context.Context, txID string) (*models.Payment, error) {
	return s.move(txID, func(p *models.Payment) error {
		if p.Status == models.PaymentStatusCompleted {
			return nil
		}
		if p.Status != models.PaymentStatusProcessing {
			return models.ErrConflict
		}
		now := s.Now()
		p.Status = models.PaymentStatusCompleted
		p.CompletedAt = &now
		s.Completions[txID]++
		return nil
	})
}

func (s *Settlement) AbortPayment(ctx context.Context, txID, reason string) (*models.Payment, error) {
	return s.close(txID, models.PaymentStatusCancelled, reason)
}

func (s *Settlement) FailPayment(ctx context.Context, txID, reason string) (*models.Payment, error) {
	return s.close(txID, models.PaymentStatusFailed, reason)
}

func (s *Settlement) close(txID string, to models.PaymentStatus, reason string) (*models.Payment, error) {
	return s.move(txID, func(p *models.Payment) error {
		if p.Status == to {
			return nil
		}
		if p.Status != models.PaymentStatusPending && p.Status != models.PaymentStatusProcessing {
			return models.ErrConflict
		}
		now := s.Now()
		p.Status = to
		p.ErrorMessage = &reason
		if to == models.PaymentStatusCancelled {
			p.CancelledAt = &now
		}
		return nil
	})
}

func (s *Settlement) move(txID string, apply func(*models.Payment) error) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byTx[txID]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", txID, models.ErrNotFound)
	}
	if err := apply(p); err != nil {
		return nil, fmt.Errorf("payment %s is %s: %w", txID, p.Status, err)
	}
	return copyOf(p), nil
}

func copyOf(p *models.Payment) *models.Payment {
	c := *p
	return &c
}
