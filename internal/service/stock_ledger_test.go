package service

import (
	"context"
	"testing"

	"shop-service/internal/models"
	"shop-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLedger_Reserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := NewStockLedger()
	p1 := f.product(t, "Case", "10.00", 3)
	retired := f.repo.SeedProduct(models.Product{Name: "Retired", Price: *price("1"), StockQuantity: 5})

	require.NoError(t, ledger.Reserve(ctx, f.repo, p1.ID, 3))
	assert.Equal(t, 0, f.stockOf(t, p1.ID))

	e := requireKind(t, ledger.Reserve(ctx, f.repo, p1.ID, 1), KindConflict, CodeInsufficientStock)
	assert.Equal(t, p1.ID, e.ProductID)
	assert.Equal(t, 0, f.stockOf(t, p1.ID))

	requireKind(t, ledger.Reserve(ctx, f.repo, 999, 1), KindNotFound, CodeProductNotFound)
	requireKind(t, ledger.Reserve(ctx, f.repo, retired.ID, 1), KindNotFound, CodeProductNotFound)
	requireKind(t, ledger.Reserve(ctx, f.repo, p1.ID, 0), KindValidation, CodeInvalidQuantity)
}

func TestStockLedger_ReleaseInsideTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := NewStockLedger()
	p1 := f.product(t, "Case", "10.00", 3)

	err := f.repo.WithinTx(ctx, func(q store.Queries) error {
		if err := ledger.Reserve(ctx, q, p1.ID, 2); err != nil {
			return err
		}
		return ledger.Release(ctx, q, p1.ID, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.stockOf(t, p1.ID))

	requireKind(t, ledger.Release(ctx, f.repo, 999, 1), KindNotFound, CodeProductNotFound)
	requireKind(t, ledger.Release(ctx, f.repo, p1.ID, -1), KindValidation, CodeInvalidQuantity)
}
