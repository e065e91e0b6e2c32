package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a keyed read or update matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a unique or check constraint.
	ErrConflict = errors.New("conflict")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Queries is the set of entity operations available both on the pool and
// inside a transaction.
type Queries interface {
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)
	InsertCustomerIfAbsent(ctx context.Context, customer *models.Customer) (bool, error)

	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsWithProducts(ctx context.Context, orderID int64) ([]models.OrderItemView, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error

	UpsertCartItem(ctx context.Context, customerID, productID int64, delta, maxQuantity int) (*models.CartItem, error)
	DeleteCartItem(ctx context.Context, customerID, productID int64) error
	DeleteCheckedOutCartItems(ctx context.Context, customerID int64, items []models.CartItemVersion) error
	GetCartLines(ctx context.Context, customerID int64) ([]models.CartLine, error)
}

// Repository adds the atomic unit of work on top of Queries.
type Repository interface {
	Queries
	// WithinTx runs fn inside one transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Store is the Postgres backed Repository
type Store struct {
	*queries
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// PoolConfig tunes the connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a new database store
func NewStore(databaseURL string, pool PoolConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreFromDB(db), nil
}

// NewStoreFromDB wraps an existing connection
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{queries: &queries{ext: db}, db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// WithinTx runs fn in a single transaction
func (s *Store) WithinTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&queries{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries implements Queries over either *sqlx.DB or *sqlx.Tx
type queries struct {
	ext sqlx.ExtContext
}

// mapError translates driver errors into store sentinels
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation", "check_violation":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case "foreign_key_violation":
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Message)
		}
	}
	return err
}

// normalizePage clamps offset/limit
func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}
