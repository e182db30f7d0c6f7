package worker

import (
	"context"
	"time"

	"water-service/internal/broker"
	"water-service/internal/models"
	"water-service/internal/notify"
	"water-service/internal/util"

	"go.uber.org/zap"
)

// Deduper remembers which notifications were already pushed
type Deduper interface {
	MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error)
	UnmarkNotified(ctx context.Context, key string) error
}

// NotificationWorker consumes domain events and pushes notifications.
// Kafka delivers at least once, so each (subject, trigger) pair is pushed
// at most once per dedupe window.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	pusher       notify.Pusher
	dedupe       Deduper
	dedupeTTL    time.Duration
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. dedupe may be nil.
func NewNotificationWorker(
	consumer *broker.Consumer,
	pusher notify.Pusher,
	dedupe Deduper,
	dedupeTTL time.Duration,
) *NotificationWorker {
	w := &NotificationWorker{
		consumer:  consumer,
		pusher:    pusher,
		dedupe:    dedupe,
		dedupeTTL: dedupeTTL,
		logger:    util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStageChanged(w.HandleOrderStageChanged)
	eventHandler.OnPaymentCompleted(w.HandlePaymentCompleted)
	eventHandler.OnSubscriptionActivated(w.HandleSubscriptionActivated)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker; it returns when ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// HandleOrderStageChanged pushes the client notification for a transition
func (w *NotificationWorker) HandleOrderStageChanged(ctx context.Context, e *models.OrderStageChangedEvent) error {
	return w.deliver(ctx, "order:"+e.OrderID+":"+e.Trigger, notify.ForStageChange(e))
}

// HandlePaymentCompleted pushes the firm's receipt
func (w *NotificationWorker) HandlePaymentCompleted(ctx context.Context, e *models.PaymentCompletedEvent) error {
	return w.deliver(ctx, "receipt:"+e.TransactionID, notify.ForPaymentReceipt(e))
}

// HandleSubscriptionActivated pushes the firm notification for an activation
func (w *NotificationWorker) HandleSubscriptionActivated(ctx context.Context, e *models.SubscriptionActivatedEvent) error {
	return w.deliver(ctx, "payment:"+e.TransactionID, notify.ForActivation(e))
}

func (w *NotificationWorker) deliver(ctx context.Context, key string, n notify.Notification) error {
	if w.dedupe != nil {
		first, err := w.dedupe.MarkNotified(ctx, key, w.dedupeTTL)
		if err != nil {
			// dedupe unavailable, prefer a duplicate over a lost notification
			w.logger.Warn("Notification dedupe failed", zap.String("key", key), zap.Error(err))
		} else if !first {
			w.logger.Debug("Skipping duplicate notification", zap.String("key", key))
			return nil
		}
	}

	if err := w.pusher.Push(ctx, n); err != nil {
		util.NotificationFailuresTotal.WithLabelValues(n.Trigger).Inc()
		if w.dedupe != nil {
			if uerr := w.dedupe.UnmarkNotified(ctx, key); uerr != nil {
				w.logger.Warn("Failed to clear dedupe key", zap.String("key", key), zap.Error(uerr))
			}
		}
		return err
	}

	util.NotificationsSentTotal.WithLabelValues(n.Trigger).Inc()
	return nil
}
