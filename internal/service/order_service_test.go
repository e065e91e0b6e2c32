package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"shop-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrder_ReservesStockAndPricesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "USB-C cable", "100.00", 10)

	placed, err := f.orders.PlaceOrder(ctx, f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: 2, UnitPrice: price("100")},
	))
	require.NoError(t, err)

	assert.Equal(t, "200", placed.Order.TotalAmount.String())
	assert.Equal(t, models.OrderStatusPending, placed.Order.Status)
	assert.Equal(t, models.PaymentStatusPending, placed.Order.PaymentStatus)
	assert.Equal(t, models.OrderTypeProduct, placed.Order.OrderType)
	require.Len(t, placed.Items, 1)
	assert.Equal(t, 2, placed.Items[0].Quantity)
	assert.True(t, placed.Items[0].Price.Equal(p1.Price))
	assert.False(t, placed.Replayed)

	assert.Equal(t, 8, f.stockOf(t, p1.ID))

	events := f.events.placedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, placed.Order.ID, events[0].OrderID)
	assert.False(t, events[0].FromCart)
}

func TestPlaceOrder_PrepaidMethodIsPaid(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Screen protector", "15.00", 3)

	req := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 1})
	req.PaymentMethod = models.PaymentMethodCard

	placed, err := f.orders.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, placed.Order.PaymentStatus)
}

func TestPlaceOrder_TotalIsSumOfLines(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Case", "19.99", 10)
	p2 := f.product(t, "Charger", "5.01", 10)

	placed, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p2.ID, Quantity: 2},
		OrderItemRequest{ProductID: p1.ID, Quantity: 3},
	))
	require.NoError(t, err)
	assert.Equal(t, "69.99", placed.Order.TotalAmount.StringFixed(2))
	require.Len(t, placed.Items, 2)
	assert.Equal(t, p1.ID, placed.Items[0].ProductID)
	assert.Equal(t, p2.ID, placed.Items[1].ProductID)
}

func TestPlaceOrder_MergesRepeatedProducts(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Earbuds", "40.00", 5)

	placed, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: 1},
		OrderItemRequest{ProductID: p1.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, placed.Items, 1)
	assert.Equal(t, 3, placed.Items[0].Quantity)
	assert.Equal(t, "120", placed.Order.TotalAmount.String())
	assert.Equal(t, 2, f.stockOf(t, p1.ID))
}

func TestPlaceOrder_ValidationHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Cable", "10.00", 5)

	tests := []struct {
		name   string
		mutate func(*PlaceOrderRequest)
		code   string
	}{
		{"no items", func(r *PlaceOrderRequest) { r.Items = nil }, CodeEmptyOrder},
		{"zero quantity", func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 }, CodeEmptyOrder},
		{"negative quantity", func(r *PlaceOrderRequest) { r.Items[0].Quantity = -1 }, CodeEmptyOrder},
		{"unknown payment method", func(r *PlaceOrderRequest) { r.PaymentMethod = "barter" }, CodeInvalidPaymentMethod},
		{"blank address", func(r *PlaceOrderRequest) { r.DeliveryAddress = "   " }, CodeInvalidInput},
		{"negative unit price", func(r *PlaceOrderRequest) { r.Items[0].UnitPrice = price("-1") }, CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 1})
			tt.mutate(req)

			_, err := f.orders.PlaceOrder(context.Background(), req)
			requireKind(t, err, KindValidation, tt.code)
		})
	}

	_, orders, items, _ := f.repo.Counts()
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Equal(t, 5, f.stockOf(t, p1.ID))
}

func TestPlaceOrder_PriceChanged(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Tripod", "25.00", 5)

	_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: 1, UnitPrice: price("20.00")},
	))
	e := requireKind(t, err, KindConflict, CodePriceChanged)
	assert.Equal(t, p1.ID, e.ProductID)
	assert.Equal(t, 5, f.stockOf(t, p1.ID))
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: 999, Quantity: 1},
	))
	e := requireKind(t, err, KindConflict, CodeStockUnavailable)
	assert.Equal(t, int64(999), e.ProductID)
}

func TestPlaceOrder_InactiveProduct(t *testing.T) {
	f := newFixture(t)
	p := f.repo.SeedProduct(models.Product{Name: "Retired", Price: *price("5"), StockQuantity: 5})

	_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p.ID, Quantity: 1},
	))
	e := requireKind(t, err, KindConflict, CodeStockUnavailable)
	assert.Equal(t, p.ID, e.ProductID)
	_, orders, _, _ := f.repo.Counts()
	assert.Zero(t, orders)
}

func TestPlaceOrder_UnknownCustomer(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Cable", "10.00", 5)

	req := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 1})
	missing := int64(4242)
	req.CustomerID = &missing

	_, err := f.orders.PlaceOrder(context.Background(), req)
	requireKind(t, err, KindNotFound, CodeCustomerNotFound)
	assert.Equal(t, 5, f.stockOf(t, p1.ID))
}

func TestPlaceOrder_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Battery", "30.00", 10)
	p2 := f.product(t, "Adapter", "12.00", 1)

	_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: 4},
		OrderItemRequest{ProductID: p2.ID, Quantity: 2},
	))
	e := requireKind(t, err, KindConflict, CodeStockUnavailable)
	assert.Equal(t, p2.ID, e.ProductID)

	// p1 was reserved before p2 failed; the reservation must be gone.
	assert.Equal(t, 10, f.stockOf(t, p1.ID))
	assert.Equal(t, 1, f.stockOf(t, p2.ID))
	_, orders, items, _ := f.repo.Counts()
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Empty(t, f.events.placedEvents())
}

func TestPlaceOrder_StoreFailureMidUnitCommitsNothing(t *testing.T) {
	for _, op := range []string{"CreateOrderItem", "DecrementStock", "Commit"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			p1 := f.product(t, "Battery", "30.00", 10)
			f.repo.FailOn(op, errors.New("connection reset"))

			_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
				OrderItemRequest{ProductID: p1.ID, Quantity: 2},
			))
			requireKind(t, err, KindInfrastructure, expectedFailureCode(op))

			f.repo.FailOn(op, nil)
			assert.Equal(t, 10, f.stockOf(t, p1.ID))
			_, orders, items, _ := f.repo.Counts()
			assert.Zero(t, orders)
			assert.Zero(t, items)
		})
	}
}

func expectedFailureCode(op string) string {
	// Reservation failures are classified by the ledger.
	if op == "DecrementStock" {
		return CodeStoreFailure
	}
	return CodeOrderFailed
}

func TestPlaceOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Limited edition case", "50.00", 5)

	const buyers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
				OrderItemRequest{ProductID: p1.ID, Quantity: 1},
			))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case CodeOf(err) == CodeStockUnavailable:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, conflicts)
	assert.Equal(t, 0, f.stockOf(t, p1.ID))
	_, orders, _, _ := f.repo.Counts()
	assert.Equal(t, 5, orders)
}

func TestPlaceOrder_LastUnitGoesToExactlyOneBuyer(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Last one", "9.00", 1)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
				OrderItemRequest{ProductID: p1.ID, Quantity: 1},
			))
			errs <- err
		}()
	}

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	requireKind(t, failures[0], KindConflict, CodeStockUnavailable)
	assert.Equal(t, 0, f.stockOf(t, p1.ID))
}

func TestPlaceOrderFromCart_ClearsCheckedOutRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Case", "10.00", 10)
	p2 := f.product(t, "Cable", "4.50", 10)

	_, err := f.carts.AddToCart(ctx, f.customer.ID, p1.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddToCart(ctx, f.customer.ID, p2.ID, 1)
	require.NoError(t, err)

	placed, err := f.orders.PlaceOrderFromCart(ctx, &CheckoutRequest{
		CustomerID:      f.customer.ID,
		PaymentMethod:   models.PaymentMethodMobileWallet,
		DeliveryAddress: "12 Harbour Road",
	})
	require.NoError(t, err)
	assert.Equal(t, "24.50", placed.Order.TotalAmount.StringFixed(2))
	assert.Equal(t, 8, f.stockOf(t, p1.ID))
	assert.Equal(t, 9, f.stockOf(t, p2.ID))

	cart, err := f.carts.GetCart(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, cart.Len())

	events := f.events.placedEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].FromCart)
	assert.Len(t, events[0].Items, 2)
}

func TestPlaceOrderFromCart_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.PlaceOrderFromCart(context.Background(), &CheckoutRequest{
		CustomerID:      f.customer.ID,
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: "12 Harbour Road",
	})
	requireKind(t, err, KindValidation, CodeEmptyOrder)
}

func TestPlaceOrderFromCart_FailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Case", "10.00", 3)

	_, err := f.carts.AddToCart(ctx, f.customer.ID, p1.ID, 5)
	require.NoError(t, err)

	_, err = f.orders.PlaceOrderFromCart(ctx, &CheckoutRequest{
		CustomerID:      f.customer.ID,
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: "12 Harbour Road",
	})
	requireKind(t, err, KindConflict, CodeStockUnavailable)

	cart, err := f.carts.GetCart(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Len())
	assert.Equal(t, 3, f.stockOf(t, p1.ID))
}

func TestPlaceOrder_IdempotencyKeyReplaysOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Cable", "10.00", 10)

	req := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 2})
	req.IdempotencyKey = "checkout-7f3a"

	first, err := f.orders.PlaceOrder(ctx, req)
	require.NoError(t, err)
	second, err := f.orders.PlaceOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.True(t, second.Replayed)
	require.Len(t, second.Items, 1)
	assert.Equal(t, 2, second.Items[0].Quantity)
	assert.Equal(t, 8, f.stockOf(t, p1.ID))
	_, orders, _, _ := f.repo.Counts()
	assert.Equal(t, 1, orders)
}

func TestPlaceOrder_SameIdempotencyKeyFromAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Cable", "10.00", 10)
	bob := f.repo.SeedCustomer(models.Customer{Name: "Bob", Phone: "0700000002"})

	aliceReq := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 2})
	aliceReq.IdempotencyKey = "k1"
	alice, err := f.orders.PlaceOrder(ctx, aliceReq)
	require.NoError(t, err)

	bobReq := &PlaceOrderRequest{
		CustomerID:      &bob.ID,
		Items:           []OrderItemRequest{{ProductID: p1.ID, Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: "7 Hill Street",
		IdempotencyKey:  "k1",
	}
	bobOrder, err := f.orders.PlaceOrder(ctx, bobReq)
	require.NoError(t, err)

	assert.False(t, bobOrder.Replayed)
	assert.NotEqual(t, alice.Order.ID, bobOrder.Order.ID)
	require.NotNil(t, bobOrder.Order.CustomerID)
	assert.Equal(t, bob.ID, *bobOrder.Order.CustomerID)
	assert.Equal(t, "7 Hill Street", bobOrder.Order.DeliveryAddress)
	assert.Equal(t, 7, f.stockOf(t, p1.ID))

	// Bob's retry replays his own order, not Alice's.
	again, err := f.orders.PlaceOrder(ctx, bobReq)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, bobOrder.Order.ID, again.Order.ID)
}

func TestPlaceOrder_ReplayOfForeignOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Cable", "10.00", 10)
	bob := f.repo.SeedCustomer(models.Customer{Name: "Bob", Phone: "0700000002"})

	alice, err := f.orders.PlaceOrder(ctx, f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 1}))
	require.NoError(t, err)

	// A key of Bob's that somehow records Alice's order.
	key := idempotencyKey(opPlaceOrder, bob.ID, "k2")
	_, _, err = f.keys.Claim(ctx, key)
	require.NoError(t, err)
	require.NoError(t, f.keys.Complete(ctx, key, alice.Order.ID))

	_, err = f.orders.PlaceOrder(ctx, &PlaceOrderRequest{
		CustomerID:      &bob.ID,
		Items:           []OrderItemRequest{{ProductID: p1.ID, Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: "7 Hill Street",
		IdempotencyKey:  "k2",
	})
	requireKind(t, err, KindConflict, CodeIdempotencyKeyReused)
}

func TestPlaceOrder_QuantityLimits(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Cable", "10.00", 5000)

	_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: MaxItemQuantity + 1},
	))
	requireKind(t, err, KindValidation, CodeInvalidQuantity)

	_, err = f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: MaxItemQuantity},
		OrderItemRequest{ProductID: p1.ID, Quantity: 1},
	))
	requireKind(t, err, KindValidation, CodeInvalidQuantity)
	assert.Equal(t, 5000, f.stockOf(t, p1.ID))
}

func TestPlaceOrder_TotalBeyondColumnRange(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Server rack", "9999999999.99", 10)

	_, err := f.orders.PlaceOrder(context.Background(), f.placeRequest(
		OrderItemRequest{ProductID: p1.ID, Quantity: 2},
	))
	requireKind(t, err, KindValidation, CodeInvalidInput)
	assert.Equal(t, 10, f.stockOf(t, p1.ID))
}

func TestPlaceOrderFromCart_KeepsProductAddedDuringCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Case", "10.00", 10)

	_, err := f.carts.AddToCart(ctx, f.customer.ID, p1.ID, 2)
	require.NoError(t, err)

	_, err = f.orders.PlaceOrderFromCart(ctx, &CheckoutRequest{
		CustomerID:      f.customer.ID,
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		DeliveryAddress: "12 Harbour Road",
	})
	require.NoError(t, err)
	events := f.events.placedEvents()
	require.Len(t, events, 1)
	require.Len(t, events[0].CartItems, 1)

	// The product goes back into the cart before the event is consumed;
	// cleaning up with the event's versions must not touch it.
	_, err = f.carts.AddToCart(ctx, f.customer.ID, p1.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.repo.DeleteCheckedOutCartItems(ctx, f.customer.ID, events[0].CartItems))

	cart, err := f.carts.GetCart(ctx, f.customer.ID)
	require.NoError(t, err)
	for _, qty := range cart.Lines() {
		assert.Equal(t, 1, qty)
	}
	assert.Equal(t, 1, cart.Len())
}

func TestPlaceOrder_IdempotencyKeyInProgress(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Cable", "10.00", 10)

	_, claimed, err := f.keys.Claim(context.Background(), idempotencyKey(opPlaceOrder, f.customer.ID, "busy"))
	require.NoError(t, err)
	require.True(t, claimed)

	req := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 1})
	req.IdempotencyKey = "busy"

	_, err = f.orders.PlaceOrder(context.Background(), req)
	requireKind(t, err, KindConflict, CodeRequestInProgress)
}

func TestPlaceOrder_FailedRequestReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	p1 := f.product(t, "Cable", "10.00", 1)

	req := f.placeRequest(OrderItemRequest{ProductID: p1.ID, Quantity: 2})
	req.IdempotencyKey = "retry-me"

	_, err := f.orders.PlaceOrder(context.Background(), req)
	requireKind(t, err, KindConflict, CodeStockUnavailable)
	assert.False(t, f.keys.has(idempotencyKey(opPlaceOrder, f.customer.ID, "retry-me")))

	req.Items[0].Quantity = 1
	placed, err := f.orders.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, placed.Replayed)
}

func TestMergeLines_RejectsConflictingPrices(t *testing.T) {
	_, err := mergeLines([]OrderItemRequest{
		{ProductID: 1, Quantity: 1, UnitPrice: price("10")},
		{ProductID: 1, Quantity: 1, UnitPrice: price("11")},
	})
	requireKind(t, err, KindValidation, CodeInvalidInput)
}

func TestMergeLines_SortsByProduct(t *testing.T) {
	lines, err := mergeLines([]OrderItemRequest{
		{ProductID: 9, Quantity: 1},
		{ProductID: 3, Quantity: 2},
		{ProductID: 9, Quantity: 4},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(3), lines[0].productID)
	assert.Equal(t, 2, lines[0].quantity)
	assert.Equal(t, int64(9), lines[1].productID)
	assert.Equal(t, 5, lines[1].quantity)
}
