// Package memstore is an in-memory store.Repository. Transactions are
// serialised on a single mutex and applied copy-on-write, so a failed unit
// leaves no trace. It backs tests and the STORE_DRIVER=memory local mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
)

type cartKey struct {
	customerID int64
	productID  int64
}

type state struct {
	customers map[int64]models.Customer
	phones    map[string]int64
	products  map[int64]models.Product
	orders    map[int64]models.Order
	items     map[int64]models.OrderItem
	cart      map[cartKey]models.CartItem

	customerSeq, productSeq, orderSeq, itemSeq, cartSeq int64
}

func newState() *state {
	return &state{
		customers: make(map[int64]models.Customer),
		phones:    make(map[string]int64),
		products:  make(map[int64]models.Product),
		orders:    make(map[int64]models.Order),
		items:     make(map[int64]models.OrderItem),
		cart:      make(map[cartKey]models.CartItem),
	}
}

func (s *state) clone() *state {
	c := *s
	c.customers = make(map[int64]models.Customer, len(s.customers))
	for k, v := range s.customers {
		c.customers[k] = v
	}
	c.phones = make(map[string]int64, len(s.phones))
	for k, v := range s.phones {
		c.phones[k] = v
	}
	c.products = make(map[int64]models.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.orders = make(map[int64]models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = make(map[int64]models.OrderItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = v
	}
	c.cart = make(map[cartKey]models.CartItem, len(s.cart))
	for k, v := range s.cart {
		c.cart[k] = v
	}
	return &c
}

// Store is the in-memory repository
type Store struct {
	mu     sync.Mutex
	st     *state
	now    func() time.Time
	faults *faults
}

var _ store.Repository = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		st:     newState(),
		now:    func() time.Time { return time.Now().UTC() },
		faults: &faults{errs: make(map[string]error)},
	}
}

// SetClock replaces the time source used for created_at/updated_at
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every subsequent call to op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.faults.set(op, err)
}

// WithinTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds. Calls on s itself from inside fn will deadlock; use q.
func (s *Store) WithinTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults.check("WithinTx"); err != nil {
		return err
	}

	snapshot := s.st.clone()
	if err := fn(&view{st: snapshot, now: s.now, faults: s.faults}); err != nil {
		return err
	}
	if err := s.faults.check("Commit"); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.st = snapshot
	return nil
}

// Ping always succeeds unless a fault is set
func (s *Store) Ping(ctx context.Context) error {
	return s.faults.check("Ping")
}

// Close is a no-op
func (s *Store) Close() error { return nil }

func (s *Store) view() *view {
	return &view{st: s.st, now: s.now, faults: s.faults}
}

type faults struct {
	mu   sync.Mutex
	errs map[string]error
}

func (f *faults) set(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[op]
}

// view implements store.Queries over one state without locking
type view struct {
	st     *state
	now    func() time.Time
	faults *faults
}

func (v *view) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	if err := v.faults.check("GetCustomerByID"); err != nil {
		return nil, err
	}
	c, ok := v.st.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (v *view) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	if err := v.faults.check("GetCustomerByPhone"); err != nil {
		return nil, err
	}
	id, ok := v.st.phones[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := v.st.customers[id]
	return &c, nil
}

func (v *view) InsertCustomerIfAbsent(ctx context.Context, customer *models.Customer) (bool, error) {
	if err := v.faults.check("InsertCustomerIfAbsent"); err != nil {
		return false, err
	}
	if _, ok := v.st.phones[customer.Phone]; ok {
		return false, nil
	}
	v.st.customerSeq++
	customer.ID = v.st.customerSeq
	customer.CreatedAt = v.now()
	v.st.customers[customer.ID] = *customer
	v.st.phones[customer.Phone] = customer.ID
	return true, nil
}

func (v *view) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	if err := v.faults.check("GetProductByID"); err != nil {
		return nil, err
	}
	p, ok := v.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if err := v.faults.check("GetActiveProductsByIDs"); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ids))
	products := []models.Product{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := v.st.products[id]; ok && p.IsActive {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (v *view) DecrementStock(ctx context.Context, productID int64, quantity int) (int64, error) {
	if err := v.faults.check("DecrementStock"); err != nil {
		return 0, err
	}
	p, ok := v.st.products[productID]
	if !ok || !p.IsActive || p.StockQuantity < quantity {
		return 0, nil
	}
	p.StockQuantity -= quantity
	p.UpdatedAt = v.now()
	v.st.products[productID] = p
	return 1, nil
}

func (v *view) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := v.faults.check("IncrementStock"); err != nil {
		return err
	}
	p, ok := v.st.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.StockQuantity += quantity
	p.UpdatedAt = v.now()
	v.st.products[productID] = p
	return nil
}

func (v *view) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := v.faults.check("CreateOrder"); err != nil {
		return err
	}
	if order.CustomerID != nil {
		if _, ok := v.st.customers[*order.CustomerID]; !ok {
			return fmt.Errorf("%w: customer %d", store.ErrNotFound, *order.CustomerID)
		}
	}
	v.st.orderSeq++
	order.ID = v.st.orderSeq
	order.CreatedAt = v.now()
	order.UpdatedAt = order.CreatedAt
	v.st.orders[order.ID] = *order
	return nil
}

func (v *view) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := v.faults.check("CreateOrderItem"); err != nil {
		return err
	}
	if _, ok := v.st.orders[item.OrderID]; !ok {
		return fmt.Errorf("%w: order %d", store.ErrNotFound, item.OrderID)
	}
	if _, ok := v.st.products[item.ProductID]; !ok {
		return fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrConflict)
	}
	v.st.itemSeq++
	item.ID = v.st.itemSeq
	v.st.items[item.ID] = *item
	return nil
}

func (v *view) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	if err := v.faults.check("GetOrderByID"); err != nil {
		return nil, err
	}
	o, ok := v.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (v *view) GetOrderItemsWithProducts(ctx context.Context, orderID int64) ([]models.OrderItemView, error) {
	if err := v.faults.check("GetOrderItemsWithProducts"); err != nil {
		return nil, err
	}
	items := []models.OrderItemView{}
	for _, it := range v.st.items {
		if it.OrderID != orderID {
			continue
		}
		p := v.st.products[it.ProductID]
		items = append(items, models.OrderItemView{OrderItem: it, ProductName: p.Name, ProductImage: p.ImageURL})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (v *view) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	if err := v.faults.check("ListOrders"); err != nil {
		return nil, err
	}
	phone := strings.ToLower(filter.Phone)

	matched := []models.Order{}
	for _, o := range v.st.orders {
		if filter.CustomerID != nil && (o.CustomerID == nil || *o.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if phone != "" {
			if o.CustomerID == nil {
				continue
			}
			c := v.st.customers[*o.CustomerID]
			if !strings.Contains(strings.ToLower(c.Phone), phone) {
				continue
			}
		}
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	offset, limit := filter.Offset, filter.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	if limit > store.MaxPageSize {
		limit = store.MaxPageSize
	}
	if offset >= len(matched) {
		return []models.Order{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (v *view) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	if err := v.faults.check("TransitionOrderStatus"); err != nil {
		return false, err
	}
	o, ok := v.st.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = v.now()
	v.st.orders[orderID] = o
	return true, nil
}

func (v *view) SetPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error {
	if err := v.faults.check("SetPaymentStatus"); err != nil {
		return err
	}
	o, ok := v.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.PaymentStatus = paymentStatus
	o.UpdatedAt = v.now()
	v.st.orders[orderID] = o
	return nil
}

func (v *view) UpsertCartItem(ctx context.Context, customerID, productID int64, delta, maxQuantity int) (*models.CartItem, error) {
	if err := v.faults.check("UpsertCartItem"); err != nil {
		return nil, err
	}
	if _, ok := v.st.customers[customerID]; !ok {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, customerID)
	}
	if _, ok := v.st.products[productID]; !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
	}

	key := cartKey{customerID: customerID, productID: productID}
	now := v.now()
	item, ok := v.st.cart[key]
	if ok {
		item.Quantity += delta
		item.UpdatedAt = now
	} else {
		v.st.cartSeq++
		item = models.CartItem{
			ID:         v.st.cartSeq,
			CustomerID: customerID,
			ProductID:  productID,
			Quantity:   delta,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	if item.Quantity <= 0 {
		return nil, fmt.Errorf("%w: cart quantity must be positive", store.ErrConflict)
	}
	if item.Quantity > maxQuantity {
		return nil, fmt.Errorf("%w: cart quantity of product %d would exceed %d", store.ErrConflict, productID, maxQuantity)
	}
	v.st.cart[key] = item
	return &item, nil
}

func (v *view) DeleteCartItem(ctx context.Context, customerID, productID int64) error {
	if err := v.faults.check("DeleteCartItem"); err != nil {
		return err
	}
	delete(v.st.cart, cartKey{customerID: customerID, productID: productID})
	return nil
}

func (v *view) DeleteCheckedOutCartItems(ctx context.Context, customerID int64, items []models.CartItemVersion) error {
	if err := v.faults.check("DeleteCheckedOutCartItems"); err != nil {
		return err
	}
	for _, it := range items {
		key := cartKey{customerID: customerID, productID: it.ProductID}
		if row, ok := v.st.cart[key]; ok && !row.UpdatedAt.After(it.UpdatedAt) {
			delete(v.st.cart, key)
		}
	}
	return nil
}

func (v *view) GetCartLines(ctx context.Context, customerID int64) ([]models.CartLine, error) {
	if err := v.faults.check("GetCartLines"); err != nil {
		return nil, err
	}
	items := make([]models.CartItem, 0)
	for k, it := range v.st.cart {
		if k.customerID == customerID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	lines := make([]models.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, models.CartLine{Product: v.st.products[it.ProductID], Quantity: it.Quantity, UpdatedAt: it.UpdatedAt})
	}
	return lines, nil
}
