package service

import (
	"context"
	"errors"
	"strings"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// GuestResolver maps name + phone to exactly one customer record
type GuestResolver struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewGuestResolver creates a new guest resolver
func NewGuestResolver(repo store.Repository) *GuestResolver {
	return &GuestResolver{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// NormalizePhone strips whitespace from a phone number
func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// ResolveGuestCustomer returns the customer owning phone, creating it when
// absent. It inserts first and falls back to a read on conflict; an existing
// customer's name is never overwritten.
func (g *GuestResolver) ResolveGuestCustomer(ctx context.Context, name, phone string) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "GuestResolver.ResolveGuestCustomer")
	defer span.End()

	name = strings.TrimSpace(name)
	phone = NormalizePhone(phone)
	if name == "" {
		return nil, validationError(CodeInvalidInput, "name is required")
	}
	if phone == "" {
		return nil, validationError(CodeInvalidInput, "phone is required")
	}

	customer := &models.Customer{Name: name, Phone: phone}
	inserted, err := g.repo.InsertCustomerIfAbsent(ctx, customer)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, infraError(CodeStoreFailure, err, "insert guest customer")
	}
	if inserted {
		util.GuestCustomersResolved.WithLabelValues("created").Inc()
		g.logger.Info("Guest customer created", zap.Int64("customer_id", customer.ID))
		return customer, nil
	}

	existing, err := g.repo.GetCustomerByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		util.GuestCustomersResolved.WithLabelValues("unresolved").Inc()
		return nil, conflictError(CodeDuplicatePhone, "phone %s is taken but could not be resolved", phone)
	}
	if err != nil {
		return nil, infraError(CodeStoreFailure, err, "load customer by phone")
	}

	util.GuestCustomersResolved.WithLabelValues("existing").Inc()
	return existing, nil
}
