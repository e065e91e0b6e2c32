package service

import (
	"context"
	"errors"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transitions lists the statuses each status may move to
var transitions = map[string][]string{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusService moves orders through their lifecycle
type StatusService struct {
	repo      store.Repository
	ledger    *StockLedger
	publisher EventPublisher
	logger    *zap.Logger
}

// NewStatusService creates a new status service. publisher may be nil.
func NewStatusService(repo store.Repository, ledger *StockLedger, publisher EventPublisher) *StatusService {
	return &StatusService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// UpdateStatus moves the order to status. Cancelling a product order returns
// its items to stock in the same transaction as the status change.
func (s *StatusService) UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdateStatus")
	defer span.End()

	if !models.ValidOrderStatus(status) {
		return nil, validationError(CodeInvalidStatus, "unknown order status %q", status)
	}

	var (
		order    *models.Order
		previous string
	)
	err := s.repo.WithinTx(ctx, func(q store.Queries) error {
		var err error
		order, err = q.GetOrderByID(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(CodeOrderNotFound, "order %d not found", orderID)
		}
		if err != nil {
			return err
		}

		previous = order.Status
		if !CanTransition(previous, status) {
			return conflictError(CodeInvalidTransition, "order %d cannot move from %s to %s", orderID, previous, status)
		}

		// Compare-and-set on the status guards against a concurrent transition.
		moved, err := q.TransitionOrderStatus(ctx, orderID, previous, status)
		if err != nil {
			return err
		}
		if !moved {
			return conflictError(CodeInvalidTransition, "order %d changed status concurrently", orderID)
		}

		if status == models.OrderStatusCancelled && order.OrderType == models.OrderTypeProduct {
			items, err := q.GetOrderItemsWithProducts(ctx, orderID)
			if err != nil {
				return err
			}
			for _, it := range items {
				if err := s.ledger.Release(ctx, q, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		s.logger.Error("Failed to update order status",
			zap.Int64("order_id", orderID),
			zap.String("status", status),
			zap.Error(err))
		return nil, infraError(CodeStoreFailure, err, "update status of order %d", orderID)
	}

	order.Status = status
	order.UpdatedAt = time.Now()
	if status == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
	}
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", previous),
		zap.String("to", status))

	s.publishStatusChanged(ctx, order, previous)
	return order, nil
}

// MarkPaid records that payment for the order has been collected
func (s *StatusService) MarkPaid(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.MarkPaid")
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(CodeOrderNotFound, "order %d not found", orderID)
	}
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load order %d", orderID)
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, conflictError(CodeInvalidTransition, "order %d is cancelled", orderID)
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return order, nil
	}

	if err := s.repo.SetPaymentStatus(ctx, orderID, models.PaymentStatusPaid); err != nil {
		return nil, infraError(CodeStoreFailure, err, "mark order %d paid", orderID)
	}
	order.PaymentStatus = models.PaymentStatusPaid
	order.UpdatedAt = time.Now()

	util.OrdersPaidTotal.Inc()
	s.logger.Info("Order marked paid", zap.Int64("order_id", orderID))

	s.publishStatusChanged(ctx, order, order.Status)
	return order, nil
}

func (s *StatusService) publishStatusChanged(ctx context.Context, order *models.Order, previous string) {
	if s.publisher == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:        order.ID,
		PreviousStatus: previous,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
	}
	if err := s.publisher.PublishOrderStatusChanged(context.WithoutCancel(ctx), event); err != nil {
		util.EventsPublishFailed.WithLabelValues(models.EventTypeOrderStatusChanged).Inc()
		s.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
