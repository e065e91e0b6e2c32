package service

import (
	"context"
	"errors"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
)

// OrderView is an order with its items and, when known, its customer
type OrderView struct {
	models.Order
	Items    []models.OrderItemView `json:"items"`
	Customer *CustomerSummary       `json:"customer,omitempty"`
}

// CustomerSummary is the part of a customer shown alongside an order
type CustomerSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// TrackingView is the public, anonymous view of an order
type TrackingView struct {
	OrderID       int64           `json:"order_id"`
	OrderType     string          `json:"order_type"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// GetOrder returns the order projection. Product name and image are read at
// query time; prices come from the order items.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.GetOrderItemsWithProducts(ctx, orderID)
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load items of order %d", orderID)
	}

	view := &OrderView{Order: *order, Items: items}
	if order.CustomerID != nil {
		customer, err := s.repo.GetCustomerByID(ctx, *order.CustomerID)
		switch {
		case err == nil:
			view.Customer = &CustomerSummary{ID: customer.ID, Name: customer.Name, Phone: customer.Phone}
		case !errors.Is(err, store.ErrNotFound):
			return nil, infraError(CodeStoreFailure, err, "load customer of order %d", orderID)
		}
	}
	return view, nil
}

// GetOrderForCustomer returns the order only if it belongs to customerID.
// Someone else's order is reported as not found.
func (s *OrderService) GetOrderForCustomer(ctx context.Context, customerID, orderID int64) (*OrderView, error) {
	view, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if view.CustomerID == nil || *view.CustomerID != customerID {
		return nil, notFoundError(CodeOrderNotFound, "order %d not found", orderID)
	}
	return view, nil
}

// ListOrders returns one page of orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if filter.Status != "" && !models.ValidOrderStatus(filter.Status) {
		return nil, validationError(CodeInvalidStatus, "unknown order status %q", filter.Status)
	}
	if filter.Offset < 0 {
		return nil, validationError(CodeInvalidInput, "offset must not be negative")
	}

	orders, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "list orders")
	}
	return orders, nil
}

// TrackOrder returns the public status of an order
func (s *OrderService) TrackOrder(ctx context.Context, orderID int64) (*TrackingView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TrackOrder")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &TrackingView{
		OrderID:       order.ID,
		OrderType:     order.OrderType,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(CodeOrderNotFound, "order %d not found", orderID)
	}
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load order %d", orderID)
	}
	return order, nil
}
