package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-admin/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProduct(sku string, created time.Time) *domain.Product {
	return &domain.Product{
		OwnerID:     "owner-1",
		Name:        "Wireless Bluetooth Headphones",
		SKU:         sku,
		Category:    "Electronics",
		Price:       decimal.RequireFromString("79.99"),
		Stock:       45,
		Status:      domain.StatusActive,
		Description: "Noise cancelling",
		CreatedAt:   created.UTC().Truncate(time.Microsecond),
		Images: []domain.ProductImage{
			{URL: "https://cdn.test/back.jpg", DisplayOrder: 1},
			{URL: "https://cdn.test/front.jpg", DisplayOrder: 0},
		},
		Variations: []domain.ProductVariation{
			{SKU: sku + "-BLK", Price: decimal.RequireFromString("79.99"), Stock: 45, Attributes: map[string]string{"color": "Black", "storage": "64GB"}},
			{SKU: sku + "-WHT", Price: decimal.RequireFromString("89.99"), Stock: 50, Attributes: map[string]string{"color": "White"}},
		},
	}
}

// testProductRepository runs the behaviour every ProductRepository must share
func testProductRepository(t *testing.T, newRepo func(t *testing.T) ProductRepository) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create then get round trips children", func(t *testing.T) {
		repo := newRepo(t)
		p := sampleProduct("WBH-001", base)
		require.NoError(t, repo.Create(ctx, p))
		require.NotEmpty(t, p.ID)

		got, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", got.OwnerID)
		assert.True(t, got.Price.Equal(p.Price))
		assert.Nil(t, got.UpdatedAt)
		require.Len(t, got.Images, 2)
		assert.Equal(t, "https://cdn.test/front.jpg", got.Images[0].URL)
		assert.Equal(t, "https://cdn.test/back.jpg", got.Images[1].URL)
		require.Len(t, got.Variations, 2)
		assert.Equal(t, "WBH-001-BLK", got.Variations[0].SKU)
		assert.Equal(t, map[string]string{"color": "Black", "storage": "64GB"}, got.Variations[0].Attributes)
		assert.Equal(t, 95, domain.TotalStock(got))
	})

	t.Run("list is newest first", func(t *testing.T) {
		repo := newRepo(t)
		for i, sku := range []string{"OLD", "NEW", "MID"} {
			offset := []time.Duration{0, 2 * time.Hour, time.Hour}[i]
			require.NoError(t, repo.Create(ctx, sampleProduct(sku, base.Add(offset))))
		}

		products, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, products, 3)
		assert.Equal(t, []string{"NEW", "MID", "OLD"}, []string{products[0].SKU, products[1].SKU, products[2].SKU})
		assert.Len(t, products[0].Variations, 2)
	})

	t.Run("update replaces children and keeps owner", func(t *testing.T) {
		repo := newRepo(t)
		p := sampleProduct("WBH-001", base)
		require.NoError(t, repo.Create(ctx, p))

		edit := sampleProduct("WBH-001", base)
		edit.ID = p.ID
		edit.OwnerID = "someone-else"
		edit.Stock = 3
		edit.Images = []domain.ProductImage{{URL: "https://cdn.test/new.jpg"}}
		edit.Variations = nil
		require.NoError(t, repo.Update(ctx, edit))

		got, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", got.OwnerID)
		assert.Equal(t, 3, got.Stock)
		assert.Empty(t, got.Variations)
		require.Len(t, got.Images, 1)
		assert.Equal(t, "https://cdn.test/new.jpg", got.Images[0].URL)
		require.NotNil(t, got.UpdatedAt)
		assert.True(t, got.CreatedAt.Equal(p.CreatedAt))
	})

	t.Run("delete cascades and reports missing", func(t *testing.T) {
		repo := newRepo(t)
		p := sampleProduct("WBH-001", base)
		require.NoError(t, repo.Create(ctx, p))

		require.NoError(t, repo.Delete(ctx, p.ID))
		_, err := repo.FindByID(ctx, p.ID)
		assert.ErrorIs(t, err, ErrProductNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, p.ID), ErrProductNotFound)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		repo := newRepo(t)
		for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
			_, err := repo.FindByID(ctx, id)
			assert.ErrorIs(t, err, ErrProductNotFound)

			missing := sampleProduct("X", base)
			missing.ID = id
			assert.ErrorIs(t, repo.Update(ctx, missing), ErrProductNotFound)
		}
	})

	t.Run("duplicate skus are allowed", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, sampleProduct("DUP", base)))
		require.NoError(t, repo.Create(ctx, sampleProduct("DUP", base.Add(time.Minute))))
	})

	t.Run("referenced images reflect current products", func(t *testing.T) {
		repo := newRepo(t)
		a := sampleProduct("A", base)
		b := sampleProduct("B", base.Add(time.Minute))
		b.Images = []domain.ProductImage{{URL: "https://cdn.test/front.jpg"}}
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		urls := []string{"https://cdn.test/front.jpg", "https://cdn.test/back.jpg", "https://cdn.test/never.jpg"}
		got, err := repo.ReferencedImages(ctx, urls)
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"https://cdn.test/front.jpg": true, "https://cdn.test/back.jpg": true}, got)

		require.NoError(t, repo.Delete(ctx, a.ID))
		got, err = repo.ReferencedImages(ctx, urls)
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"https://cdn.test/front.jpg": true}, got)

		got, err = repo.ReferencedImages(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cancelled context is store unavailable", func(t *testing.T) {
		repo := newRepo(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := repo.List(cancelled)
		assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
	})
}

func TestMemoryProductRepository(t *testing.T) {
	testProductRepository(t, func(t *testing.T) ProductRepository {
		return NewMemoryProductRepository()
	})
}

// Stored products are isolated from later caller mutation
func TestProperty_MemoryRepositoryCopiesOnWrite(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("mutating the argument after create does not leak", prop.ForAll(
		func(stock int, attr string) bool {
			repo := NewMemoryProductRepository()
			p := sampleProduct("SKU", time.Now())
			if err := repo.Create(context.Background(), p); err != nil {
				return false
			}

			p.Stock = stock + 1000
			p.Variations[0].Attributes["color"] = attr + "!"
			p.Images[0].URL = "mutated"

			got, err := repo.FindByID(context.Background(), p.ID)
			if err != nil {
				return false
			}
			return got.Stock == 45 &&
				got.Variations[0].Attributes["color"] == "Black" &&
				got.Images[0].URL != "mutated"
		},
		gen.IntRange(0, 1000),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPartialWriteErrorUnwraps(t *testing.T) {
	cause := errors.New("insert failed")
	err := error(&PartialWriteError{ProductID: "p1", Stage: "variations", RolledBack: true, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "variations")
}
