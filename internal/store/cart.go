package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// UpsertCartItem adds delta to the (customer, product) row, creating it when
// missing. The insert-or-accumulate happens in one statement. An accumulation
// that would exceed maxQuantity writes nothing and returns ErrConflict.
func (q *queries) UpsertCartItem(ctx context.Context, customerID, productID int64, delta, maxQuantity int) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (customer_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		WHERE cart_items.quantity + EXCLUDED.quantity <= $4
		RETURNING id, customer_id, product_id, quantity, created_at, updated_at`

	var item models.CartItem
	err := sqlx.GetContext(ctx, q.ext, &item, query, customerID, productID, delta, maxQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cart quantity of product %d would exceed %d", ErrConflict, productID, maxQuantity)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

// DeleteCartItem removes one row; a missing row is not an error
func (q *queries) DeleteCartItem(ctx context.Context, customerID, productID int64) error {
	_, err := q.ext.ExecContext(ctx,
		"DELETE FROM cart_items WHERE customer_id = $1 AND product_id = $2", customerID, productID)
	return mapError(err)
}

// DeleteCheckedOutCartItems removes the checked out rows of a customer's
// cart. A row updated after its recorded version was added to again and is
// kept. Running it twice has the same effect as running it once.
func (q *queries) DeleteCheckedOutCartItems(ctx context.Context, customerID int64, items []models.CartItemVersion) error {
	for _, it := range items {
		_, err := q.ext.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE customer_id = $1 AND product_id = $2 AND updated_at <= $3`,
			customerID, it.ProductID, it.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

type cartRow struct {
	models.Product
	CartQuantity  int       `db:"cart_quantity"`
	CartUpdatedAt time.Time `db:"cart_updated_at"`
}

// GetCartLines returns the cart joined with product snapshots, oldest first
func (q *queries) GetCartLines(ctx context.Context, customerID int64) ([]models.CartLine, error) {
	var rows []cartRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT p.id, p.name, p.price, p.category, p.stock_quantity, p.is_active, p.image_url,
			p.created_at, p.updated_at, ci.quantity AS cart_quantity, ci.updated_at AS cart_updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.customer_id = $1
		ORDER BY ci.id`, customerID)
	if err != nil {
		return nil, mapError(err)
	}

	lines := make([]models.CartLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, models.CartLine{Product: r.Product, Quantity: r.CartQuantity, UpdatedAt: r.CartUpdatedAt})
	}
	return lines, nil
}
