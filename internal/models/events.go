package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after an order commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64             `json:"order_id"`
	CustomerID  *int64            `json:"customer_id,omitempty"`
	OrderType   string            `json:"order_type"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	FromCart    bool              `json:"from_cart"`
	CartItems   []CartItemVersion `json:"cart_items,omitempty"`
	Items       []OrderItemData   `json:"items"`
}

// OrderStatusChangedEvent published after a status transition commits
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
