package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a registered or guest (quick order) customer
type Customer struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Address      *string   `db:"address" json:"address,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Category      string          `db:"category" json:"category"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	ImageURL      *string         `db:"image_url" json:"image_url,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order. TotalAmount is fixed at creation.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	CustomerID      *int64          `db:"customer_id" json:"customer_id,omitempty"`
	OrderType       string          `db:"order_type" json:"order_type"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          string          `db:"status" json:"status"`
	PaymentStatus   string          `db:"payment_status" json:"payment_status"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	DeliveryAddress string          `db:"delivery_address" json:"delivery_address"`
	ServiceType     *string         `db:"service_type" json:"service_type,omitempty"`
	DeviceModel     *string         `db:"device_model" json:"device_model,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a line of an order. Price is the unit price captured at order time.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// OrderItemView is an order item joined with the current product name and image
type OrderItemView struct {
	OrderItem
	ProductName  string  `db:"product_name" json:"product_name"`
	ProductImage *string `db:"product_image" json:"product_image,omitempty"`
}

// CartItem is a pending (customer, product) quantity
type CartItem struct {
	ID         int64     `db:"id" json:"id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine pairs a product snapshot with the quantity held in the cart.
// UpdatedAt is the cart row's last change.
type CartLine struct {
	Product   Product
	Quantity  int
	UpdatedAt time.Time
}

// CartItemVersion identifies a cart row as it was when checked out. A row
// changed after UpdatedAt is a newer addition and must survive cleanup.
type CartItemVersion struct {
	ProductID int64     `json:"product_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderFilter narrows order listings. Zero values mean "no filter".
type OrderFilter struct {
	CustomerID *int64
	Status     string
	Phone      string
	Offset     int
	Limit      int
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Payment methods
const (
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentMethodCard           = "card"
	PaymentMethodBankTransfer   = "bank_transfer"
	PaymentMethodMobileWallet   = "mobile_wallet"
)

// Order types
const (
	OrderTypeProduct = "product"
	OrderTypeService = "service"
)

// ValidOrderStatus reports whether s is a known order status
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentMethod reports whether m is an accepted payment method
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCashOnDelivery, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodMobileWallet:
		return true
	}
	return false
}

// PaymentStatusFor derives the initial payment status. Everything except
// cash on delivery is collected up front.
func PaymentStatusFor(method string) string {
	if method == PaymentMethodCashOnDelivery {
		return PaymentStatusPending
	}
	return PaymentStatusPaid
}
