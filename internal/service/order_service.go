package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService places orders and serves order projections
type OrderService struct {
	repo        store.Repository
	ledger      *StockLedger
	guests      *GuestResolver
	publisher   EventPublisher
	idempotency IdempotencyStore
	logger      *zap.Logger
}

// NewOrderService creates a new order service. publisher and idempotency may
// be nil, which disables events and request deduplication respectively.
func NewOrderService(
	repo store.Repository,
	ledger *StockLedger,
	guests *GuestResolver,
	publisher EventPublisher,
	idempotency IdempotencyStore,
) *OrderService {
	return &OrderService{
		repo:        repo,
		ledger:      ledger,
		guests:      guests,
		publisher:   publisher,
		idempotency: idempotency,
		logger:      util.GetLogger(),
	}
}

// MaxItemQuantity bounds the quantity of one product in an order or a cart
const MaxItemQuantity = 1000

// maxOrderTotal is the largest amount a NUMERIC(12,2) column holds
var maxOrderTotal = decimal.RequireFromString("9999999999.99")

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// PlaceOrderRequest represents a request to create an order from an item list
type PlaceOrderRequest struct {
	CustomerID      *int64             `json:"-"`
	Items           []OrderItemRequest `json:"items"`
	PaymentMethod   string             `json:"payment_method"`
	DeliveryAddress string             `json:"delivery_address"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
}

// Validate checks the request without touching any state
func (r *PlaceOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return validationError(CodeEmptyOrder, "order must contain at least one item")
	}
	for _, it := range r.Items {
		if it.ProductID <= 0 {
			return validationError(CodeInvalidInput, "product_id must be positive")
		}
		if it.Quantity <= 0 {
			return validationError(CodeEmptyOrder, "quantity of product %d must be positive", it.ProductID)
		}
		if it.Quantity > MaxItemQuantity {
			return validationError(CodeInvalidQuantity, "quantity of product %d must not exceed %d", it.ProductID, MaxItemQuantity)
		}
		if it.UnitPrice != nil && it.UnitPrice.IsNegative() {
			return validationError(CodeInvalidInput, "unit_price of product %d must not be negative", it.ProductID)
		}
	}
	return validateCheckout(r.PaymentMethod, r.DeliveryAddress)
}

// CheckoutRequest turns the customer's cart into an order
type CheckoutRequest struct {
	CustomerID      int64  `json:"-"`
	PaymentMethod   string `json:"payment_method"`
	DeliveryAddress string `json:"delivery_address"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

func validateCheckout(paymentMethod, deliveryAddress string) error {
	if !models.ValidPaymentMethod(paymentMethod) {
		return validationError(CodeInvalidPaymentMethod, "unsupported payment method %q", paymentMethod)
	}
	if strings.TrimSpace(deliveryAddress) == "" {
		return validationError(CodeInvalidInput, "delivery_address is required")
	}
	return nil
}

// PlacedOrder is the committed order with its items
type PlacedOrder struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Replayed bool               `json:"-"`
}

type orderLine struct {
	productID   int64
	quantity    int
	clientPrice *decimal.Decimal
	unitPrice   decimal.Decimal
}

// PlaceOrder validates req and atomically creates the order, its items and
// the stock reservations. Either all of them commit or none do.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlacedOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := req.Validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}
	lines, err := mergeLines(req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	var owner int64
	if req.CustomerID != nil {
		owner = *req.CustomerID
	}
	return s.withIdempotency(ctx, opPlaceOrder, owner, req.IdempotencyKey, func() (*PlacedOrder, error) {
		return s.commitOrder(ctx, req.CustomerID, lines, req.PaymentMethod, req.DeliveryAddress, nil)
	})
}

// PlaceOrderFromCart places an order for everything in the customer's cart
// and clears those cart rows once the order has committed.
func (s *OrderService) PlaceOrderFromCart(ctx context.Context, req *CheckoutRequest) (*PlacedOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrderFromCart")
	defer span.End()

	if err := validateCheckout(req.PaymentMethod, req.DeliveryAddress); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	return s.withIdempotency(ctx, opCheckout, req.CustomerID, req.IdempotencyKey, func() (*PlacedOrder, error) {
		cart, err := s.repo.GetCartLines(ctx, req.CustomerID)
		if err != nil {
			return nil, infraError(CodeStoreFailure, err, "load cart of customer %d", req.CustomerID)
		}
		if len(cart) == 0 {
			util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
			return nil, validationError(CodeEmptyOrder, "cart is empty")
		}

		items := make([]OrderItemRequest, 0, len(cart))
		versions := make([]models.CartItemVersion, 0, len(cart))
		for _, l := range cart {
			price := l.Product.Price
			items = append(items, OrderItemRequest{ProductID: l.Product.ID, Quantity: l.Quantity, UnitPrice: &price})
			versions = append(versions, models.CartItemVersion{ProductID: l.Product.ID, UpdatedAt: l.UpdatedAt})
		}
		lines, err := mergeLines(items)
		if err != nil {
			return nil, err
		}

		customerID := req.CustomerID
		placed, err := s.commitOrder(ctx, &customerID, lines, req.PaymentMethod, req.DeliveryAddress, versions)
		if err != nil {
			return nil, err
		}

		s.clearCart(ctx, customerID, versions)
		return placed, nil
	})
}

// commitOrder runs the atomic unit: order row, item rows, reservations.
// cart holds the checked out cart rows, nil for direct orders.
func (s *OrderService) commitOrder(
	ctx context.Context,
	customerID *int64,
	lines []orderLine,
	paymentMethod, deliveryAddress string,
	cart []models.CartItemVersion,
) (*PlacedOrder, error) {
	order := &models.Order{
		CustomerID:      customerID,
		OrderType:       models.OrderTypeProduct,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusFor(paymentMethod),
		PaymentMethod:   paymentMethod,
		DeliveryAddress: strings.TrimSpace(deliveryAddress),
	}
	var items []models.OrderItem

	start := time.Now()
	err := s.repo.WithinTx(ctx, func(q store.Queries) error {
		priced, total, err := priceLines(ctx, q, lines)
		if err != nil {
			return err
		}
		order.TotalAmount = total

		if err := q.CreateOrder(ctx, order); err != nil {
			return err
		}

		items = make([]models.OrderItem, 0, len(priced))
		for _, l := range priced {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: l.productID,
				Quantity:  l.quantity,
				Price:     l.unitPrice,
			}
			if err := q.CreateOrderItem(ctx, &item); err != nil {
				return err
			}
			items = append(items, item)
		}

		for _, l := range priced {
			if err := s.ledger.Reserve(ctx, q, l.productID, l.quantity); err != nil {
				return stockUnavailable(l.productID, err)
			}
		}
		return nil
	})
	util.OrderPlacementLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, s.orderFailure(customerID, err)
	}

	util.OrdersCreatedTotal.WithLabelValues(models.OrderTypeProduct).Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(items)),
		zap.Bool("from_cart", cart != nil))

	s.publishOrderPlaced(ctx, order, items, cart)

	return &PlacedOrder{Order: order, Items: items}, nil
}

// mergeLines folds repeated products into one line and orders lines by
// product id so that concurrent checkouts lock product rows in the same order.
func mergeLines(items []OrderItemRequest) ([]orderLine, error) {
	lines := make([]orderLine, 0, len(items))
	index := make(map[int64]int, len(items))

	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			if !samePrice(lines[i].clientPrice, it.UnitPrice) {
				return nil, validationError(CodeInvalidInput, "conflicting unit prices for product %d", it.ProductID)
			}
			lines[i].quantity += it.Quantity
			if lines[i].quantity > MaxItemQuantity {
				return nil, validationError(CodeInvalidQuantity, "quantity of product %d must not exceed %d", it.ProductID, MaxItemQuantity)
			}
			continue
		}
		index[it.ProductID] = len(lines)
		lines = append(lines, orderLine{productID: it.ProductID, quantity: it.Quantity, clientPrice: it.UnitPrice})
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return lines, nil
}

func samePrice(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// priceLines snapshots the catalog price of every line and sums the total.
// A client price that disagrees with the catalog rejects the order.
func priceLines(ctx context.Context, q store.Queries, lines []orderLine) ([]orderLine, decimal.Decimal, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.productID)
	}

	products, err := q.GetActiveProductsByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	total := decimal.Zero
	priced := make([]orderLine, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.productID]
		if !ok {
			return nil, decimal.Zero, stockUnavailable(l.productID,
				notFoundError(CodeProductNotFound, "product %d is not available", l.productID))
		}
		if l.clientPrice != nil && !l.clientPrice.Equal(p.Price) {
			e := conflictError(CodePriceChanged, "price of product %d is %s, not %s",
				l.productID, p.Price.StringFixed(2), l.clientPrice.StringFixed(2))
			e.ProductID = l.productID
			return nil, decimal.Zero, e
		}
		l.unitPrice = p.Price
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.quantity))))
		priced = append(priced, l)
	}
	if total.GreaterThan(maxOrderTotal) {
		return nil, decimal.Zero, validationError(CodeInvalidInput, "order total %s exceeds the maximum of %s",
			total.StringFixed(2), maxOrderTotal.StringFixed(2))
	}
	return priced, total, nil
}

// stockUnavailable turns a failed reservation into the order level error
// naming the product. Infrastructure failures pass through unchanged.
func stockUnavailable(productID int64, cause error) error {
	switch KindOf(cause) {
	case KindConflict, KindNotFound:
		var reason string
		var e *Error
		if errors.As(cause, &e) {
			reason = e.Message
		}
		return &Error{
			Kind:      KindConflict,
			Code:      CodeStockUnavailable,
			Message:   reason,
			ProductID: productID,
			Err:       cause,
		}
	}
	return cause
}

// orderFailure classifies an error from the atomic unit. The unit has been
// rolled back by the time this runs.
func (s *OrderService) orderFailure(customerID *int64, err error) error {
	var e *Error
	if errors.As(err, &e) {
		util.OrdersFailedTotal.WithLabelValues(e.Code).Inc()
		if e.Kind == KindInfrastructure {
			s.logger.Error("Order placement failed", zap.Error(err))
		}
		return e
	}

	if errors.Is(err, store.ErrNotFound) && customerID != nil {
		util.OrdersFailedTotal.WithLabelValues(CodeCustomerNotFound).Inc()
		return notFoundError(CodeCustomerNotFound, "customer %d not found", *customerID)
	}

	util.OrdersFailedTotal.WithLabelValues(CodeOrderFailed).Inc()
	s.logger.Error("Order placement failed", zap.Error(err))
	return infraError(CodeOrderFailed, err, "order could not be placed, nothing was committed")
}

// Idempotency keys are scoped per operation and caller
const (
	opPlaceOrder = "order"
	opCheckout   = "checkout"
)

func idempotencyKey(op string, customerID int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", op, customerID, key)
}

// withIdempotency answers a repeated key with the order it already produced.
// customerID is the caller, 0 for anonymous requests.
func (s *OrderService) withIdempotency(
	ctx context.Context,
	op string,
	customerID int64,
	key string,
	fn func() (*PlacedOrder, error),
) (*PlacedOrder, error) {
	if key == "" || s.idempotency == nil {
		return fn()
	}
	key = idempotencyKey(op, customerID, key)

	orderID, claimed, err := s.idempotency.Claim(ctx, key)
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "claim idempotency key")
	}
	if !claimed {
		if orderID == 0 {
			return nil, conflictError(CodeRequestInProgress, "a request with this idempotency key is still in progress")
		}
		util.OrdersDeduplicatedTotal.Inc()
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", orderID))
		return s.loadPlaced(ctx, customerID, orderID)
	}

	placed, err := fn()

	// The outcome must be recorded even if the caller has gone away.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if relErr := s.idempotency.Release(bg, key); relErr != nil {
			s.logger.Error("Failed to release idempotency key",
				zap.String("idempotency_key", key),
				zap.Error(relErr))
		}
		return nil, err
	}
	if cErr := s.idempotency.Complete(bg, key, placed.Order.ID); cErr != nil {
		s.logger.Error("Failed to complete idempotency key",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", placed.Order.ID),
			zap.Error(cErr))
	}
	return placed, nil
}

// loadPlaced reloads the order a key produced. An order owned by someone
// other than the caller is never replayed.
func (s *OrderService) loadPlaced(ctx context.Context, customerID, orderID int64) (*PlacedOrder, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load order %d", orderID)
	}
	var owner int64
	if order.CustomerID != nil {
		owner = *order.CustomerID
	}
	if owner != customerID {
		s.logger.Warn("Idempotency key points at another customer's order",
			zap.Int64("order_id", orderID),
			zap.Int64("customer_id", customerID))
		return nil, conflictError(CodeIdempotencyKeyReused, "idempotency key was used for a different request")
	}

	views, err := s.repo.GetOrderItemsWithProducts(ctx, orderID)
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load items of order %d", orderID)
	}
	items := make([]models.OrderItem, 0, len(views))
	for _, v := range views {
		items = append(items, v.OrderItem)
	}
	return &PlacedOrder{Order: order, Items: items, Replayed: true}, nil
}

// clearCart removes checked out cart rows that have not changed since they
// were read. A failure leaves stale cart rows, which the next checkout
// re-validates, so it is only logged.
func (s *OrderService) clearCart(ctx context.Context, customerID int64, cart []models.CartItemVersion) {
	if err := s.repo.DeleteCheckedOutCartItems(context.WithoutCancel(ctx), customerID, cart); err != nil {
		s.logger.Warn("Failed to clear cart after checkout",
			zap.Int64("customer_id", customerID),
			zap.Error(err))
	}
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order, items []models.OrderItem, cart []models.CartItemVersion) {
	if s.publisher == nil {
		return
	}

	data := make([]models.OrderItemData, 0, len(items))
	for _, it := range items {
		data = append(data, models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.Price})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		OrderType:   order.OrderType,
		TotalAmount: order.TotalAmount,
		FromCart:    cart != nil,
		CartItems:   cart,
		Items:       data,
	}

	if err := s.publisher.PublishOrderPlaced(context.WithoutCancel(ctx), event); err != nil {
		util.EventsPublishFailed.WithLabelValues(models.EventTypeOrderPlaced).Inc()
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
