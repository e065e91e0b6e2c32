package store

import (
	"context"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, price, category, stock_quantity, is_active, image_url, created_at, updated_at`

// GetProductByID retrieves a product by ID, active or not
func (q *queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, mapError(err)
	}
	return &product, nil
}

// GetActiveProductsByIDs retrieves the active products among ids
func (q *queries) GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+productColumns+" FROM products WHERE id IN (?) AND is_active = TRUE ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = q.ext.Rebind(query)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, q.ext, &products, query, args...); err != nil {
		return nil, mapError(err)
	}
	return products, nil
}

// DecrementStock subtracts quantity only if enough stock remains on an
// active product. It returns the number of rows affected (0 or 1).
func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $1, updated_at = NOW()
		WHERE id = $2 AND is_active = TRUE AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

// IncrementStock returns quantity to stock
func (q *queries) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res)
}
