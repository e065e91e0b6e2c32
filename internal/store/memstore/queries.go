package memstore

import (
	"context"

	"shop-service/internal/models"
)

func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetCustomerByID(ctx, id)
}

func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetCustomerByPhone(ctx, phone)
}

func (s *Store) InsertCustomerIfAbsent(ctx context.Context, customer *models.Customer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertCustomerIfAbsent(ctx, customer)
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetProductByID(ctx, id)
}

func (s *Store) GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetActiveProductsByIDs(ctx, ids)
}

func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DecrementStock(ctx, productID, quantity)
}

func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().IncrementStock(ctx, productID, quantity)
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateOrder(ctx, order)
}

func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateOrderItem(ctx, item)
}

func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetOrderByID(ctx, id)
}

func (s *Store) GetOrderItemsWithProducts(ctx context.Context, orderID int64) ([]models.OrderItemView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetOrderItemsWithProducts(ctx, orderID)
}

func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListOrders(ctx, filter)
}

func (s *Store) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().TransitionOrderStatus(ctx, orderID, from, to)
}

func (s *Store) SetPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SetPaymentStatus(ctx, orderID, paymentStatus)
}

func (s *Store) UpsertCartItem(ctx context.Context, customerID, productID int64, delta, maxQuantity int) (*models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpsertCartItem(ctx, customerID, productID, delta, maxQuantity)
}

func (s *Store) DeleteCartItem(ctx context.Context, customerID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteCartItem(ctx, customerID, productID)
}

func (s *Store) DeleteCheckedOutCartItems(ctx context.Context, customerID int64, items []models.CartItemVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteCheckedOutCartItems(ctx, customerID, items)
}

func (s *Store) GetCartLines(ctx context.Context, customerID int64) ([]models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetCartLines(ctx, customerID)
}

// SeedProduct inserts a product and returns it with its assigned ID
func (s *Store) SeedProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.productSeq++
	p.ID = s.st.productSeq
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.st.products[p.ID] = p
	return p
}

// SeedCustomer inserts a customer and returns it with its assigned ID
func (s *Store) SeedCustomer(c models.Customer) models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.view().InsertCustomerIfAbsent(context.Background(), &c)
	return c
}

// Counts reports the number of customers, orders, order items and cart rows
func (s *Store) Counts() (customers, orders, items, cart int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.customers), len(s.st.orders), len(s.st.items), len(s.st.cart)
}
