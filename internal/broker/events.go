package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"affiliate-service/internal/models"
	"affiliate-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleRecorded publishes SaleRecorded event
func (ep *EventPublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	key := fmt.Sprintf("sale-%d", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSaleUpdated publishes SaleUpdated event
func (ep *EventPublisher) PublishSaleUpdated(ctx context.Context, event *models.SaleUpdatedEvent) error {
	key := fmt.Sprintf("sale-%d", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCommissionsGenerated publishes CommissionsGenerated event
func (ep *EventPublisher) PublishCommissionsGenerated(ctx context.Context, event *models.CommissionsGeneratedEvent) error {
	key := fmt.Sprintf("run-%s", event.RunID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCommissionsSettled publishes CommissionsSettled event
func (ep *EventPublisher) PublishCommissionsSettled(ctx context.Context, event *models.CommissionsSettledEvent) error {
	key := fmt.Sprintf("run-%s", event.RunID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentCreated publishes PaymentCreated event
func (ep *EventPublisher) PublishPaymentCreated(ctx context.Context, event *models.PaymentCreatedEvent) error {
	key := fmt.Sprintf("payment-%d", event.PaymentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	logger           *zap.Logger
	onPaymentCreated func(context.Context, *models.PaymentCreatedEvent) error
	onSettled        func(context.Context, *models.CommissionsSettledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentCreated registers a handler for PaymentCreated events
func (eh *EventHandler) OnPaymentCreated(handler func(context.Context, *models.PaymentCreatedEvent) error) {
	eh.onPaymentCreated = handler
}

// OnCommissionsSettled registers a handler for CommissionsSettled events
func (eh *EventHandler) OnCommissionsSettled(handler func(context.Context, *models.CommissionsSettledEvent) error) {
	eh.onSettled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentCreated:
		if eh.onPaymentCreated != nil {
			var event models.PaymentCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentCreated event: %w", err)
			}
			return eh.onPaymentCreated(ctx, &event)
		}

	case models.EventTypeCommissionsSettled:
		if eh.onSettled != nil {
			var event models.CommissionsSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CommissionsSettled event: %w", err)
			}
			return eh.onSettled(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
