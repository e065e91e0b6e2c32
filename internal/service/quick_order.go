package service

import (
	"context"
	"strings"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuickOrderRequest is a guest repair or service request
type QuickOrderRequest struct {
	Name        string           `json:"name"`
	Phone       string           `json:"phone"`
	ServiceType string           `json:"service_type"`
	DeviceModel string           `json:"phone_model,omitempty"`
	Location    string           `json:"location,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
}

// Validate checks the request without touching any state
func (r *QuickOrderRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return validationError(CodeInvalidInput, "name is required")
	}
	if NormalizePhone(r.Phone) == "" {
		return validationError(CodeInvalidInput, "phone is required")
	}
	if strings.TrimSpace(r.ServiceType) == "" {
		return validationError(CodeInvalidInput, "service_type is required")
	}
	if r.Price != nil && r.Price.IsNegative() {
		return validationError(CodeInvalidInput, "price must not be negative")
	}
	return nil
}

// QuickOrder is a placed service order with the customer it belongs to
type QuickOrder struct {
	Order    *models.Order    `json:"order"`
	Customer *models.Customer `json:"customer"`
}

// PlaceQuickOrder resolves the guest by phone and opens a service order for
// them. A returning phone number reuses the existing customer unchanged.
func (s *OrderService) PlaceQuickOrder(ctx context.Context, req *QuickOrderRequest) (*QuickOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceQuickOrder")
	defer span.End()

	if err := req.Validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	customer, err := s.guests.ResolveGuestCustomer(ctx, req.Name, req.Phone)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(CodeOf(err)).Inc()
		return nil, err
	}

	total := decimal.Zero
	if req.Price != nil {
		total = *req.Price
	}
	serviceType := strings.TrimSpace(req.ServiceType)
	order := &models.Order{
		CustomerID:      &customer.ID,
		OrderType:       models.OrderTypeService,
		TotalAmount:     total,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: strings.TrimSpace(req.Location),
		ServiceType:     &serviceType,
	}
	if model := strings.TrimSpace(req.DeviceModel); model != "" {
		order.DeviceModel = &model
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues(CodeOrderFailed).Inc()
		s.logger.Error("Failed to create quick order",
			zap.Int64("customer_id", customer.ID),
			zap.Error(err))
		return nil, infraError(CodeOrderFailed, err, "quick order could not be placed")
	}

	util.OrdersCreatedTotal.WithLabelValues(models.OrderTypeService).Inc()
	s.logger.Info("Quick order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", customer.ID),
		zap.String("service_type", serviceType))

	s.publishOrderPlaced(ctx, order, nil, nil)

	return &QuickOrder{Order: order, Customer: customer}, nil
}
