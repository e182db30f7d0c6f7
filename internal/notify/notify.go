// Package notify turns domain events into client-facing notifications.
// Delivery itself belongs to an external push service.
package notify

import (
	"context"
	"fmt"

	"water-service/internal/models"
	"water-service/internal/util"

	"go.uber.org/zap"
)

// Recipient kinds
const (
	RecipientClient = "client"
	RecipientDriver = "driver"
	RecipientFirm   = "firm"
)

// Notification is one message for one recipient
type Notification struct {
	Trigger       string
	RecipientKind string
	RecipientID   int64
	OrderID       string
	Title         string
	Body          string
}

// Pusher delivers notifications
type Pusher interface {
	Push(ctx context.Context, n Notification) error
}

var titles = map[string]string{
	"order_queued":           "Order received",
	"courier_assigned":       "Courier assigned",
	"order_picked_up":        "Order picked up",
	"order_on_the_way":       "Courier is on the way",
	"order_delivered":        "Order delivered",
	"order_cancelled":        "Order cancelled",
	"subscription_activated": "Subscription activated",
	"payment_received":       "Payment received",
}

// ForStageChange builds the client notification for an order transition
func ForStageChange(e *models.OrderStageChangedEvent) Notification {
	body := fmt.Sprintf("Order %s: %s", e.OrderNumber, titles[e.Trigger])
	if e.CancelReason != "" {
		body += " (" + e.CancelReason + ")"
	}
	return Notification{
		Trigger:       e.Trigger,
		RecipientKind: RecipientClient,
		RecipientID:   e.ClientID,
		OrderID:       e.OrderID,
		Title:         titles[e.Trigger],
		Body:          body,
	}
}

// ForActivation builds the firm notification for a subscription extension
func ForActivation(e *models.SubscriptionActivatedEvent) Notification {
	return Notification{
		Trigger:       "subscription_activated",
		RecipientKind: RecipientFirm,
		RecipientID:   e.FirmID,
		Title:         titles["subscription_activated"],
		Body:          fmt.Sprintf("%s plan active until %s", e.Plan, e.Until.UTC().Format("2006-01-02")),
	}
}

// ForPaymentReceipt builds the firm's billing receipt. Amounts are in tiyin.
func ForPaymentReceipt(e *models.PaymentCompletedEvent) Notification {
	return Notification{
		Trigger:       "payment_received",
		RecipientKind: RecipientFirm,
		RecipientID:   e.FirmID,
		Title:         titles["payment_received"],
		Body: fmt.Sprintf("%d.%02d UZS received via %s (%s)",
			e.Amount/100, e.Amount%100, e.Provider, e.TransactionID),
	}
}

// LogPusher writes notifications to the log
type LogPusher struct {
	logger *zap.Logger
}

// NewLogPusher creates a pusher backed by the global logger
func NewLogPusher() *LogPusher {
	return &LogPusher{logger: util.GetLogger()}
}

func (p *LogPusher) Push(ctx context.Context, n Notification) error {
	p.logger.Info("Notification",
		zap.String("trigger", n.Trigger),
		zap.String("recipient_kind", n.RecipientKind),
		zap.Int64("recipient_id", n.RecipientID),
		zap.String("order_id", n.OrderID),
		zap.String("title", n.Title))
	return nil
}
