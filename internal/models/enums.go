package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderStage is an order's position in its fulfillment state machine
type OrderStage string

// Order stages
const (
	StagePending    OrderStage = "PENDING"
	StageInQueue    OrderStage = "IN_QUEUE"
	StageConfirmed  OrderStage = "CONFIRMED"
	StagePickedUp   OrderStage = "PICKED_UP"
	StageDelivering OrderStage = "DELIVERING"
	StageDelivered  OrderStage = "DELIVERED"
	StageCancelled  OrderStage = "CANCELLED"
)

// QueuedStages are the stages meaning "awaiting a driver"
var QueuedStages = []OrderStage{StagePending, StageInQueue}

// TerminalStages cannot be left
var TerminalStages = []OrderStage{StageDelivered, StageCancelled}

// IsQueued reports whether the order is awaiting a driver
func (s OrderStage) IsQueued() bool {
	return s == StagePending || s == StageInQueue
}

// IsTerminal reports whether no further transitions are allowed
func (s OrderStage) IsTerminal() bool {
	return s == StageDelivered || s == StageCancelled
}

// Valid reports whether s is a known stage
func (s OrderStage) Valid() bool {
	switch s {
	case StagePending, StageInQueue, StageConfirmed, StagePickedUp,
		StageDelivering, StageDelivered, StageCancelled:
		return true
	}
	return false
}

// advances lists the staff-driven moves. CONFIRMED is only entered by a
// claim and CANCELLED only by a cancellation.
var advances = map[OrderStage][]OrderStage{
	StagePending:    {StageInQueue},
	StageConfirmed:  {StagePickedUp, StageDelivering, StageDelivered},
	StagePickedUp:   {StageDelivering, StageDelivered},
	StageDelivering: {StageDelivered},
}

// CanAdvance reports whether a staff-driven move from -> to is legal
func CanAdvance(from, to OrderStage) bool {
	for _, next := range advances[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NotificationTrigger returns the client notification for entering a stage
func NotificationTrigger(stage OrderStage) (string, bool) {
	switch stage {
	case StageInQueue:
		return "order_queued", true
	case StageConfirmed:
		return "courier_assigned", true
	case StagePickedUp:
		return "order_picked_up", true
	case StageDelivering:
		return "order_on_the_way", true
	case StageDelivered:
		return "order_delivered", true
	case StageCancelled:
		return "order_cancelled", true
	}
	return "", false
}

// FormatOrderNumber builds the display number ORD-YYYYMMDD-NNNN
func FormatOrderNumber(t time.Time, seq int) string {
	return fmt.Sprintf("ORD-%s-%04d", t.UTC().Format("20060102"), seq%10000)
}

// PaymentMethod is how the client pays the courier
type PaymentMethod string

// Payment methods
const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
)

// ParsePaymentMethod normalizes a client-supplied payment method
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentMethodCash, PaymentMethodCard:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, s)
}

// PaymentStatus is the common provider-independent payment state
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// IsFinal reports whether the payment can no longer change
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled || s == PaymentStatusFailed
}

// PaymentType distinguishes subscription charges from anything else
type PaymentType string

// Payment types
const (
	PaymentTypeSubscription PaymentType = "SUBSCRIPTION"
	PaymentTypeOther        PaymentType = "OTHER"
)

// PaymentProvider is one of the supported checkout providers
type PaymentProvider string

// Payment providers
const (
	ProviderPayme PaymentProvider = "PAYME"
	ProviderClick PaymentProvider = "CLICK"
)

// ParseProvider normalizes a provider name
func ParseProvider(s string) (PaymentProvider, error) {
	switch p := PaymentProvider(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProviderPayme, ProviderClick:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrValidation, s)
}

// Plan is a paid subscription tier
type Plan string

// Plans
const (
	PlanBasic Plan = "BASIC"
	PlanPro   Plan = "PRO"
	PlanMax   Plan = "MAX"
)

// ParsePlan normalizes a plan id
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(strings.ToUpper(strings.TrimSpace(s))); p {
	case PlanBasic, PlanPro, PlanMax:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown plan %q", ErrValidation, s)
}

// BillingPeriod is the length a payment buys
type BillingPeriod string

// Billing periods
const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// ParseBillingPeriod normalizes a billing period
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	switch p := BillingPeriod(strings.ToLower(strings.TrimSpace(s))); p {
	case BillingMonthly, BillingYearly:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown billing period %q", ErrValidation, s)
}

// SubscriptionStatus is the stored subscription state of a firm
type SubscriptionStatus string

// Subscription statuses
const (
	SubscriptionTrialActive  SubscriptionStatus = "TRIAL_ACTIVE"
	SubscriptionTrialExpired SubscriptionStatus = "TRIAL_EXPIRED"
	SubscriptionBasic        SubscriptionStatus = SubscriptionStatus(PlanBasic)
	SubscriptionPro          SubscriptionStatus = SubscriptionStatus(PlanPro)
	SubscriptionMax          SubscriptionStatus = SubscriptionStatus(PlanMax)
)

// IsPaid reports whether the status is a paid plan
func (s SubscriptionStatus) IsPaid() bool {
	return s == SubscriptionBasic || s == SubscriptionPro || s == SubscriptionMax
}
