package store

import (
	"context"
	"database/sql"
	"errors"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const customerColumns = `id, name, phone, email, password_hash, address, created_at`

// GetCustomerByID retrieves a customer by ID
func (q *queries) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := sqlx.GetContext(ctx, q.ext, &customer,
		"SELECT "+customerColumns+" FROM customers WHERE id = $1", id)
	if err != nil {
		return nil, mapError(err)
	}
	return &customer, nil
}

// GetCustomerByPhone retrieves a customer by its unique phone
func (q *queries) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var customer models.Customer
	err := sqlx.GetContext(ctx, q.ext, &customer,
		"SELECT "+customerColumns+" FROM customers WHERE phone = $1", phone)
	if err != nil {
		return nil, mapError(err)
	}
	return &customer, nil
}

// InsertCustomerIfAbsent inserts the customer unless the phone is taken.
// On insert, ID and CreatedAt are filled in and true is returned; when the
// phone already exists nothing is written and false is returned.
func (q *queries) InsertCustomerIfAbsent(ctx context.Context, customer *models.Customer) (bool, error) {
	query := `
		INSERT INTO customers (name, phone, email, password_hash, address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO NOTHING
		RETURNING id, created_at`

	err := q.ext.QueryRowxContext(ctx, query,
		customer.Name, customer.Phone, customer.Email, customer.PasswordHash, customer.Address,
	).Scan(&customer.ID, &customer.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}
