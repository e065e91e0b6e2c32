package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, customer_id, order_type, total_amount, status, payment_status, payment_method,
	delivery_address, service_type, device_model, created_at, updated_at`

// CreateOrder creates a new order
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, order_type, total_amount, status, payment_status,
			payment_method, delivery_address, service_type, device_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, order, query,
		order.CustomerID, order.OrderType, order.TotalAmount, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.DeliveryAddress, order.ServiceType, order.DeviceModel)
	return mapError(err)
}

// CreateOrderItem creates a new order item
func (q *queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := sqlx.GetContext(ctx, q.ext, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.Price)
	return mapError(err)
}

// GetOrderByID retrieves an order by ID
func (q *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

// GetOrderItemsWithProducts retrieves the items of an order joined with the
// current product name and image
func (q *queries) GetOrderItemsWithProducts(ctx context.Context, orderID int64) ([]models.OrderItemView, error) {
	items := []models.OrderItemView{}
	err := sqlx.SelectContext(ctx, q.ext, &items, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
			p.name AS product_name, p.image_url AS product_image
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

// ListOrders lists orders newest first. Ties on created_at are broken by id
// so that offset pagination is deterministic.
func (q *queries) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CustomerID != nil {
		conds = append(conds, "o.customer_id = "+arg(*filter.CustomerID))
	}
	if filter.Status != "" {
		conds = append(conds, "o.status = "+arg(filter.Status))
	}
	if filter.Phone != "" {
		conds = append(conds, "c.phone ILIKE "+arg("%"+filter.Phone+"%"))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range strings.Split(orderColumns, ",") {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("o." + strings.TrimSpace(col))
	}
	sb.WriteString(" FROM orders o LEFT JOIN customers c ON c.id = o.customer_id")
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	offset, limit := normalizePage(filter.Offset, filter.Limit)
	sb.WriteString(" ORDER BY o.created_at DESC, o.id DESC")
	sb.WriteString(" LIMIT " + arg(limit) + " OFFSET " + arg(offset))

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, q.ext, &orders, sb.String(), args...); err != nil {
		return nil, mapError(err)
	}
	return orders, nil
}

// TransitionOrderStatus moves an order from one status to another. It
// reports false when the order is no longer in the from status.
func (q *queries) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetPaymentStatus records the payment status of an order
func (q *queries) SetPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		paymentStatus, orderID)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
