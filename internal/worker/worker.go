package worker

import (
	"context"
	"fmt"

	"affiliate-service/internal/broker"
	"affiliate-service/internal/models"
	"affiliate-service/internal/redisclient"
	"affiliate-service/internal/store"
	"affiliate-service/internal/util"

	"go.uber.org/zap"
)

// PayoutWorker consumes settlement events and maintains each
// affiliate's lifetime payout balance in Redis
type PayoutWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewPayoutWorker creates a new payout worker
func NewPayoutWorker(consumer *broker.Consumer, store *store.Store, redis *redisclient.Client) *PayoutWorker {
	w := &PayoutWorker{
		consumer: consumer,
		store:    store,
		redis:    redis,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentCreated(w.handlePaymentCreated)
	eventHandler.OnCommissionsSettled(w.handleCommissionsSettled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *PayoutWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payout worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PayoutWorker) Stop() error {
	w.logger.Info("Stopping payout worker")
	return w.consumer.Close()
}

// handlePaymentCreated credits the receiver's balance cache once per event
func (w *PayoutWorker) handlePaymentCreated(ctx context.Context, event *models.PaymentCreatedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.redis.AddToBalance(ctx, event.AffiliateID, event.Amount); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	w.logger.Info("Payout credited",
		zap.Int64("affiliate_id", event.AffiliateID),
		zap.Int64("payment_id", event.PaymentID),
		zap.String("amount", event.Amount.String()))
	return nil
}

// handleCommissionsSettled logs the settlement summary
func (w *PayoutWorker) handleCommissionsSettled(ctx context.Context, event *models.CommissionsSettledEvent) error {
	w.logger.Info("Settlement completed",
		zap.String("run_id", event.RunID),
		zap.Int("payments", event.PaymentCount),
		zap.String("total_paid", event.TotalPaid.String()))
	return nil
}
