package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"water-service/internal/models"
	"water-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is what the event publisher writes through
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
	now      func() time.Time
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer, now: time.Now}
}

func (ep *EventPublisher) base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: ep.now().UTC(),
	}
}

// PublishOrderStageChanged publishes the notification trigger for a transition
func (ep *EventPublisher) PublishOrderStageChanged(ctx context.Context, event *models.OrderStageChangedEvent) error {
	event.BaseEvent = ep.base(models.EventTypeOrderStageChanged)
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentCompleted publishes PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	event.BaseEvent = ep.base(models.EventTypePaymentCompleted)
	key := fmt.Sprintf("payment-%s", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSubscriptionActivated publishes SubscriptionActivated event
func (ep *EventPublisher) PublishSubscriptionActivated(ctx context.Context, event *models.SubscriptionActivatedEvent) error {
	event.BaseEvent = ep.base(models.EventTypeSubscriptionActivated)
	key := fmt.Sprintf("payment-%s", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderStageChanged     func(context.Context, *models.OrderStageChangedEvent) error
	onPaymentCompleted      func(context.Context, *models.PaymentCompletedEvent) error
	onSubscriptionActivated func(context.Context, *models.SubscriptionActivatedEvent) error
	logger                  *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderStageChanged registers a handler for OrderStageChanged events
func (eh *EventHandler) OnOrderStageChanged(handler func(context.Context, *models.OrderStageChangedEvent) error) {
	eh.onOrderStageChanged = handler
}

// OnPaymentCompleted registers a handler for PaymentCompleted events
func (eh *EventHandler) OnPaymentCompleted(handler func(context.Context, *models.PaymentCompletedEvent) error) {
	eh.onPaymentCompleted = handler
}

// OnSubscriptionActivated registers a handler for SubscriptionActivated events
func (eh *EventHandler) OnSubscriptionActivated(handler func(context.Context, *models.SubscriptionActivatedEvent) error) {
	eh.onSubscriptionActivated = handler
}

// HandleMessage routes messages to appropriate handlers. Malformed messages
// are logged and dropped so they do not block the partition.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Warn("Dropping malformed event", zap.String("key", string(msg.Key)), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderStageChanged:
		if eh.onOrderStageChanged != nil {
			var event models.OrderStageChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Warn("Dropping malformed OrderStageChanged event", zap.Error(err))
				return nil
			}
			return eh.onOrderStageChanged(ctx, &event)
		}

	case models.EventTypePaymentCompleted:
		if eh.onPaymentCompleted != nil {
			var event models.PaymentCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Warn("Dropping malformed PaymentCompleted event", zap.Error(err))
				return nil
			}
			return eh.onPaymentCompleted(ctx, &event)
		}

	case models.EventTypeSubscriptionActivated:
		if eh.onSubscriptionActivated != nil {
			var event models.SubscriptionActivatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Warn("Dropping malformed SubscriptionActivated event", zap.Error(err))
				return nil
			}
			return eh.onSubscriptionActivated(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
