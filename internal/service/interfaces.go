package service

import (
	"context"

	"shop-service/internal/models"
)

// EventPublisher publishes domain events after their transaction commits
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// IdempotencyStore maps client supplied keys to the order they produced
type IdempotencyStore interface {
	// Claim reserves key for a new request. When the key already completed,
	// the stored order id is returned with claimed=false. When another request
	// holds the key, orderID is 0 and claimed is false.
	Claim(ctx context.Context, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}
