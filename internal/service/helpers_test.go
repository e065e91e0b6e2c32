package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	placed  []*models.OrderPlacedEvent
	changed []*models.OrderStatusChangedEvent
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, event)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, event *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return nil
}

func (p *recordingPublisher) placedEvents() []*models.OrderPlacedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.OrderPlacedEvent(nil), p.placed...)
}

func (p *recordingPublisher) changedEvents() []*models.OrderStatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.OrderStatusChangedEvent(nil), p.changed...)
}

// memoryKeys is an IdempotencyStore kept in a map
type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{keys: make(map[string]int64)}
}

func (m *memoryKeys) Claim(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = 0
	return 0, true, nil
}

func (m *memoryKeys) Complete(_ context.Context, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memoryKeys) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memoryKeys) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok
}

type fixture struct {
	repo     *memstore.Store
	events   *recordingPublisher
	keys     *memoryKeys
	orders   *OrderService
	carts    *CartService
	statuses *StatusService
	customer models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memstore.New()
	// Strictly increasing timestamps keep list ordering deterministic.
	var (
		clockMu sync.Mutex
		tick    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	repo.SetClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	})

	events := &recordingPublisher{}
	keys := newMemoryKeys()
	ledger := NewStockLedger()
	guests := NewGuestResolver(repo)

	return &fixture{
		repo:     repo,
		events:   events,
		keys:     keys,
		orders:   NewOrderService(repo, ledger, guests, events, keys),
		carts:    NewCartService(repo),
		statuses: NewStatusService(repo, ledger, events),
		customer: repo.SeedCustomer(models.Customer{Name: "Alice", Phone: "0700000001"}),
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) models.Product {
	t.Helper()
	return f.repo.SeedProduct(models.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Category:      "accessories",
		StockQuantity: stock,
		IsActive:      true,
	})
}

func (f *fixture) stockOf(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.repo.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) placeRequest(items ...OrderItemRequest) *PlaceOrderRequest {
	id := f.customer.ID
	return &PlaceOrderRequest{
		CustomerID:      &id,
		Items:           items,
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: "12 Harbour Road",
	}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func requireKind(t *testing.T, err error, kind Kind, code string) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	require.Equal(t, code, e.Code, "error: %v", err)
	return e
}
