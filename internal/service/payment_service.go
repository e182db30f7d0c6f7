package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"water-service/internal/gateway"
	"water-service/internal/models"
	"water-service/internal/subscription"
	"water-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService initiates subscription payments and implements the
// provider-independent settlement state machine the webhook adapters drive.
type PaymentService struct {
	payments      PaymentRepository
	firms         FirmRepository
	checkouts     map[models.PaymentProvider]gateway.CheckoutBuilder
	cache         AccessCache
	events        EventPublisher
	notifyTimeout time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

var _ gateway.Settlement = (*PaymentService)(nil)

// NewPaymentService creates a new payment service. cache and events may be nil.
func NewPaymentService(
	payments PaymentRepository,
	firms FirmRepository,
	cache AccessCache,
	events EventPublisher,
	notifyTimeout time.Duration,
	checkouts ...gateway.CheckoutBuilder,
) *PaymentService {
	if notifyTimeout <= 0 {
		notifyTimeout = 5 * time.Second
	}
	byProvider := make(map[models.PaymentProvider]gateway.CheckoutBuilder, len(checkouts))
	for _, c := range checkouts {
		byProvider[c.Provider()] = c
	}
	return &PaymentService{
		payments:      payments,
		firms:         firms,
		checkouts:     byProvider,
		cache:         cache,
		events:        events,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
		logger:        util.GetLogger(),
	}
}

// CreatePaymentRequest represents a request to buy a plan
type CreatePaymentRequest struct {
	FirmID        int64  `json:"firm_id" binding:"required"`
	PlanID        string `json:"plan_id"`
	BillingPeriod string `json:"billing_period"`
	Provider      string `json:"provider"`
}

// CreatePaymentResponse carries what the client needs to start checkout
type CreatePaymentResponse struct {
	PaymentID     int64  `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
	Amount        int64  `json:"amount"`
}

// CreatePayment records a PENDING subscription payment and returns the
// provider checkout link for it
func (s *PaymentService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePayment")
	defer span.End()

	plan, err := models.ParsePlan(req.PlanID)
	if err != nil {
		return nil, err
	}
	period, err := models.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		return nil, err
	}
	provider, err := models.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	checkout, ok := s.checkouts[provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s is not enabled", models.ErrValidation, provider)
	}

	amount, err := subscription.Price(plan, period)
	if err != nil {
		return nil, err
	}

	if _, err := s.firms.GetFirm(ctx, req.FirmID); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		TransactionID: strings.ReplaceAll(uuid.New().String(), "-", ""),
		FirmID:        req.FirmID,
		Type:          models.PaymentTypeSubscription,
		Provider:      provider,
		Amount:        amount,
		Status:        models.PaymentStatusPending,
		PlanID:        plan,
		BillingPeriod: period,
		Metadata:      models.JSONMap{},
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	url, err := checkout.CheckoutURL(payment)
	if err != nil {
		msg := "checkout link: " + err.Error()
		if _, terr := s.payments.TransitionPayment(ctx, payment.ID,
			[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusFailed,
			models.PaymentChange{ErrorMessage: &msg, At: s.now()}); terr != nil {
			s.logger.Error("Failed to mark payment failed", zap.Int64("payment_id", payment.ID), zap.Error(terr))
		}
		return nil, fmt.Errorf("failed to build checkout url: %w", err)
	}

	util.PaymentsCreatedTotal.WithLabelValues(string(provider)).Inc()
	s.logger.Info("Payment created",
		zap.Int64("payment_id", payment.ID),
		zap.String("transaction_id", payment.TransactionID),
		zap.Int64("firm_id", payment.FirmID),
		zap.String("plan", string(plan)),
		zap.String("period", string(period)))

	return &CreatePaymentResponse{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		CheckoutURL:   url,
		Amount:        payment.Amount,
	}, nil
}

// CancelPayment is a staff-initiated cancel, allowed only before the
// provider has touched the payment
func (s *PaymentService) CancelPayment(ctx context.Context, txID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CancelPayment")
	defer span.End()

	pay, err := s.payments.GetPaymentByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if pay.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("payment %s is %s: %w", txID, pay.Status, models.ErrConflict)
	}

	reason := "cancelled by staff"
	pay, err = s.payments.TransitionPayment(ctx, pay.ID,
		[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusCancelled,
		models.PaymentChange{ErrorMessage: &reason, At: s.now()})
	if errors.Is(err, models.ErrStaleTransition) {
		return nil, fmt.Errorf("payment %s changed concurrently: %w", txID, models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	util.PaymentsFinishedTotal.WithLabelValues(string(pay.Provider), string(pay.Status)).Inc()
	return pay, nil
}

// GetPayment returns a payment by transaction id
func (s *PaymentService) GetPayment(ctx context.Context, txID string) (*models.Payment, error) {
	return s.payments.GetPaymentByTransactionID(ctx, txID)
}

// ListPayments returns a firm's billing history, newest first
func (s *PaymentService) ListPayments(ctx context.Context, firmID int64) ([]models.Payment, error) {
	if _, err := s.firms.GetFirm(ctx, firmID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListPaymentsByFirm(ctx, firmID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}

// GetPaymentByTransactionID implements gateway.Settlement
func (s *PaymentService) GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	return s.payments.GetPaymentByTransactionID(ctx, txID)
}

// GetPaymentByExternalID implements gateway.Settlement
func (s *PaymentService) GetPaymentByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (*models.Payment, error) {
	return s.payments.GetPaymentByExternalID(ctx, provider, externalID)
}

var openStatuses = []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing}

// BeginPayment implements gateway.Settlement
func (s *PaymentService) BeginPayment(ctx context.Context, txID, externalID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.BeginPayment")
	defer span.End()

	reached := func(p *models.Payment) bool {
		return p.Status == models.PaymentStatusProcessing && p.ExternalID != nil && *p.ExternalID == externalID
	}

	pay, err := s.payments.GetPaymentByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if reached(pay) {
		return pay, nil
	}
	if pay.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("payment %s is %s: %w", txID, pay.Status, models.ErrConflict)
	}

	next, err := s.payments.TransitionPayment(ctx, pay.ID,
		[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusProcessing,
		models.PaymentChange{ExternalID: &externalID, At: s.now()})
	if errors.Is(err, models.ErrStaleTransition) {
		return s.reread(ctx, txID, reached)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment processing",
		zap.String("transaction_id", txID),
		zap.String("external_id", externalID))
	return next, nil
}

// CompletePayment implements gateway.Settlement. The subscription
// activation is written in the same transaction as the status change, so a
// replayed completion never extends the plan twice.
func (s *PaymentService) CompletePayment(ctx context.Context, txID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CompletePayment")
	defer span.End()

	reached := func(p *models.Payment) bool { return p.Status == models.PaymentStatusCompleted }

	pay, err := s.payments.GetPaymentByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if reached(pay) {
		return pay, nil
	}
	if pay.Status != models.PaymentStatusProcessing {
		return nil, fmt.Errorf("payment %s is %s: %w", txID, pay.Status, models.ErrConflict)
	}

	now := s.now()
	act, err := subscription.NewActivation(pay, now)
	if err != nil {
		return nil, err
	}

	done, err := s.payments.CompletePayment(ctx, pay.ID,
		[]models.PaymentStatus{models.PaymentStatusProcessing}, models.PaymentChange{At: now}, act)
	if errors.Is(err, models.ErrStaleTransition) {
		return s.reread(ctx, txID, reached)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.PaymentsFinishedTotal.WithLabelValues(string(done.Provider), string(done.Status)).Inc()
	s.logger.Info("Payment completed",
		zap.String("transaction_id", txID),
		zap.Int64("firm_id", done.FirmID),
		zap.Int64("amount", done.Amount))

	if act != nil {
		util.SubscriptionsActivatedTotal.WithLabelValues(string(act.Plan), string(done.BillingPeriod)).Inc()
		s.logger.Info("Subscription activated",
			zap.Int64("firm_id", act.FirmID),
			zap.String("plan", string(act.Plan)),
			zap.Time("until", act.Until))
		if s.cache != nil {
			if err := s.cache.InvalidateAccessStatus(ctx, act.FirmID); err != nil {
				s.logger.Warn("Failed to invalidate access cache", zap.Int64("firm_id", act.FirmID), zap.Error(err))
			}
		}
	}

	s.publishCompletion(ctx, done, act)
	return done, nil
}

// AbortPayment implements gateway.Settlement
func (s *PaymentService) AbortPayment(ctx context.Context, txID, reason string) (*models.Payment, error) {
	return s.finish(ctx, "PaymentService.AbortPayment", txID, models.PaymentStatusCancelled, reason)
}

// FailPayment implements gateway.Settlement
func (s *PaymentService) FailPayment(ctx context.Context, txID, reason string) (*models.Payment, error) {
	return s.finish(ctx, "PaymentService.FailPayment", txID, models.PaymentStatusFailed, reason)
}

func (s *PaymentService) finish(ctx context.Context, span, txID string, to models.PaymentStatus, reason string) (*models.Payment, error) {
	ctx, sp := util.StartSpan(ctx, span)
	defer sp.End()

	reached := func(p *models.Payment) bool { return p.Status == to }

	pay, err := s.payments.GetPaymentByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if reached(pay) {
		return pay, nil
	}
	if !isOpen(pay.Status) {
		return nil, fmt.Errorf("payment %s is %s: %w", txID, pay.Status, models.ErrConflict)
	}

	next, err := s.payments.TransitionPayment(ctx, pay.ID, openStatuses, to,
		models.PaymentChange{ErrorMessage: &reason, At: s.now()})
	if errors.Is(err, models.ErrStaleTransition) {
		return s.reread(ctx, txID, reached)
	}
	if err != nil {
		return nil, err
	}

	util.PaymentsFinishedTotal.WithLabelValues(string(next.Provider), string(next.Status)).Inc()
	s.logger.Info("Payment closed",
		zap.String("transaction_id", txID),
		zap.String("status", string(to)),
		zap.String("reason", reason))
	return next, nil
}

// reread resolves a failed conditional update: if another caller already
// reached the target state the call is a replay, otherwise it conflicts.
func (s *PaymentService) reread(ctx context.Context, txID string, reached func(*models.Payment) bool) (*models.Payment, error) {
	pay, err := s.payments.GetPaymentByTransactionID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if reached(pay) {
		return pay, nil
	}
	return nil, fmt.Errorf("payment %s is %s: %w", txID, pay.Status, models.ErrConflict)
}

func (s *PaymentService) publishCompletion(ctx context.Context, pay *models.Payment, act *models.Activation) {
	if s.events == nil {
		return
	}

	completed := &models.PaymentCompletedEvent{
		PaymentID:     pay.ID,
		TransactionID: pay.TransactionID,
		FirmID:        pay.FirmID,
		Provider:      pay.Provider,
		Amount:        pay.Amount,
	}
	var activated *models.SubscriptionActivatedEvent
	if act != nil {
		activated = &models.SubscriptionActivatedEvent{
			FirmID:        act.FirmID,
			Plan:          act.Plan,
			Until:         act.Until,
			TransactionID: pay.TransactionID,
		}
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, s.notifyTimeout)
		defer cancel()

		if err := s.events.PublishPaymentCompleted(ctx, completed); err != nil {
			s.logger.Error("Failed to publish payment completion",
				zap.String("transaction_id", completed.TransactionID), zap.Error(err))
		}
		if activated == nil {
			return
		}
		if err := s.events.PublishSubscriptionActivated(ctx, activated); err != nil {
			util.NotificationFailuresTotal.WithLabelValues("subscription_activated").Inc()
			s.logger.Error("Failed to publish subscription activation",
				zap.String("transaction_id", activated.TransactionID), zap.Error(err))
		}
	}()
}

func isOpen(status models.PaymentStatus) bool {
	return status == models.PaymentStatusPending || status == models.PaymentStatusProcessing
}
