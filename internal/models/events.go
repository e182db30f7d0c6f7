package models

import "time"

// Event types
const (
	EventTypeOrderStageChanged     = "order.stage_changed"
	EventTypePaymentCompleted      = "payment.completed"
	EventTypeSubscriptionActivated = "subscription.activated"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStageChangedEvent is the notification trigger for an order transition
type OrderStageChangedEvent struct {
	BaseEvent
	OrderID      string     `json:"order_id"`
	OrderNumber  string     `json:"order_number"`
	FirmID       int64      `json:"firm_id"`
	ClientID     int64      `json:"client_id"`
	DriverID     *int64     `json:"driver_id,omitempty"`
	Stage        OrderStage `json:"stage"`
	Trigger      string     `json:"trigger"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// PaymentCompletedEvent published once per payment reaching COMPLETED
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID     int64           `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	FirmID        int64           `json:"firm_id"`
	Provider      PaymentProvider `json:"provider"`
	Amount        int64           `json:"amount"`
}

// SubscriptionActivatedEvent published when a firm's paid window is extended
type SubscriptionActivatedEvent struct {
	BaseEvent
	FirmID        int64     `json:"firm_id"`
	Plan          Plan      `json:"plan"`
	Until         time.Time `json:"until"`
	TransactionID string    `json:"transaction_id"`
}
