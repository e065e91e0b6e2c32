package service

import (
	"context"
	"errors"
	"iter"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService consolidates cart mutations per (customer, product)
type CartService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository) *CartService {
	return &CartService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// AddToCart adds quantity of a product to the customer's cart. Repeated
// calls for the same product accumulate on a single row.
func (s *CartService) AddToCart(ctx context.Context, customerID, productID int64, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	if quantity <= 0 {
		return nil, validationError(CodeInvalidQuantity, "quantity must be a positive integer, got %d", quantity)
	}
	if quantity > MaxItemQuantity {
		return nil, validationError(CodeInvalidQuantity, "quantity must not exceed %d, got %d", MaxItemQuantity, quantity)
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !product.IsActive) {
		e := notFoundError(CodeProductNotFound, "product %d not found", productID)
		e.ProductID = productID
		return nil, e
	}
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load product %d", productID)
	}

	item, err := s.repo.UpsertCartItem(ctx, customerID, productID, quantity, MaxItemQuantity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(CodeCustomerNotFound, "customer %d not found", customerID)
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, validationError(CodeInvalidQuantity, "cart may hold at most %d of product %d", MaxItemQuantity, productID)
	}
	if err != nil {
		s.logger.Error("Failed to upsert cart item",
			zap.Int64("customer_id", customerID),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return nil, infraError(CodeStoreFailure, err, "add product %d to cart", productID)
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return item, nil
}

// RemoveFromCart deletes the product from the cart. Removing an absent
// product succeeds.
func (s *CartService) RemoveFromCart(ctx context.Context, customerID, productID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveFromCart")
	defer span.End()

	if err := s.repo.DeleteCartItem(ctx, customerID, productID); err != nil {
		return infraError(CodeStoreFailure, err, "remove product %d from cart", productID)
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return nil
}

// GetCart returns a read-only view of the customer's cart
func (s *CartService) GetCart(ctx context.Context, customerID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	lines, err := s.repo.GetCartLines(ctx, customerID)
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load cart of customer %d", customerID)
	}
	return &CartView{CustomerID: customerID, lines: lines}, nil
}

// CartView is a snapshot of a cart
type CartView struct {
	CustomerID int64
	lines      []models.CartLine
}

// Lines yields (product, quantity) pairs. The sequence can be ranged over
// any number of times.
func (c *CartView) Lines() iter.Seq2[models.Product, int] {
	return func(yield func(models.Product, int) bool) {
		for _, l := range c.lines {
			if !yield(l.Product, l.Quantity) {
				return
			}
		}
	}
}

// Len is the number of distinct products in the cart
func (c *CartView) Len() int {
	return len(c.lines)
}

// Subtotal is the sum of current price times quantity
func (c *CartView) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for p, qty := range c.Lines() {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}
