package worker

import (
	"context"
	"fmt"

	"shop-service/internal/broker"
	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// CartCleaner deletes checked out cart rows
type CartCleaner interface {
	DeleteCheckedOutCartItems(ctx context.Context, customerID int64, items []models.CartItemVersion) error
}

// OrderEventWorker handles background processing for order events. It
// repeats the cart cleanup of cart checkouts, which the request path only
// attempts once.
type OrderEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	carts        CartCleaner
	logger       *zap.Logger
}

// NewOrderEventWorker creates a new order event worker
func NewOrderEventWorker(consumer *broker.Consumer, carts CartCleaner) *OrderEventWorker {
	w := &OrderEventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		carts:        carts,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderPlaced(w.HandleOrderPlaced)
	w.eventHandler.OnOrderStatusChanged(w.HandleOrderStatusChanged)

	return w
}

// Start starts the worker
func (w *OrderEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderEventWorker) Stop() error {
	w.logger.Info("Stopping order event worker")
	return w.consumer.Close()
}

// HandleOrderPlaced clears the cart rows of a cart checkout. Rows already
// gone or added to since the checkout are left alone, so redelivery is
// harmless.
func (w *OrderEventWorker) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if !event.FromCart || event.CustomerID == nil || len(event.CartItems) == 0 {
		return nil
	}

	if err := w.carts.DeleteCheckedOutCartItems(ctx, *event.CustomerID, event.CartItems); err != nil {
		return fmt.Errorf("clear cart of customer %d for order %d: %w", *event.CustomerID, event.OrderID, err)
	}

	w.logger.Debug("Cart cleared for order",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("customer_id", *event.CustomerID),
		zap.Int("products", len(event.CartItems)))
	return nil
}

// HandleOrderStatusChanged records status changes in the log
func (w *OrderEventWorker) HandleOrderStatusChanged(_ context.Context, event *models.OrderStatusChangedEvent) error {
	w.logger.Info("Order status changed",
		zap.Int64("order_id", event.OrderID),
		zap.String("from", event.PreviousStatus),
		zap.String("to", event.Status),
		zap.String("payment_status", event.PaymentStatus))
	return nil
}
