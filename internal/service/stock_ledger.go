package service

import (
	"context"
	"errors"
	"time"

	"shop-service/internal/store"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// StockLedger is the only writer of Product.stock_quantity
type StockLedger struct {
	logger *zap.Logger
}

// NewStockLedger creates a new stock ledger
func NewStockLedger() *StockLedger {
	return &StockLedger{logger: util.GetLogger()}
}

// Reserve decrements stock by quantity if enough remains. The check and the
// decrement are one conditional update, so q must be the transaction the
// reservation belongs to.
func (l *StockLedger) Reserve(ctx context.Context, q store.Queries, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "StockLedger.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity <= 0 {
		return validationError(CodeInvalidQuantity, "quantity must be positive, got %d", quantity)
	}

	affected, err := q.DecrementStock(ctx, productID, quantity)
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		return infraError(CodeStoreFailure, err, "reserve stock for product %d", productID)
	}
	if affected == 1 {
		return nil
	}

	// Nothing was decremented: find out why for the caller.
	product, err := q.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !product.IsActive) {
		util.InventoryReservationsFailed.WithLabelValues("not_found").Inc()
		e := notFoundError(CodeProductNotFound, "product %d not found", productID)
		e.ProductID = productID
		return e
	}
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		return infraError(CodeStoreFailure, err, "load product %d", productID)
	}

	util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
	l.logger.Debug("Insufficient stock",
		zap.Int64("product_id", productID),
		zap.Int("available", product.StockQuantity),
		zap.Int("requested", quantity))

	e := conflictError(CodeInsufficientStock,
		"insufficient stock for product %d: available=%d, requested=%d", productID, product.StockQuantity, quantity)
	e.ProductID = productID
	return e
}

// Release returns quantity to stock, e.g. when an order is cancelled. It is
// not needed on rollback: a rolled back transaction reverts its reservations.
func (l *StockLedger) Release(ctx context.Context, q store.Queries, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "StockLedger.Release")
	defer span.End()

	if quantity <= 0 {
		return validationError(CodeInvalidQuantity, "quantity must be positive, got %d", quantity)
	}

	if err := q.IncrementStock(ctx, productID, quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e := notFoundError(CodeProductNotFound, "product %d not found", productID)
			e.ProductID = productID
			return e
		}
		return infraError(CodeStoreFailure, err, "release stock for product %d", productID)
	}
	return nil
}
