package database

import (
	"context"
	"fmt"
	"time"

	"catalog-admin/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SeedOwner owns the demo catalog
const SeedOwner = "system"

// placeholderImage stands in until real photos are uploaded
const placeholderImage = "/placeholder.svg"

// DemoProducts returns the demonstration catalog shown on a fresh dashboard.
// The headphones carry three variations so the aggregates have something to show.
func DemoProducts() []*domain.Product {
	price := decimal.RequireFromString
	day := func(month time.Month, d int) time.Time {
		return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
	}

	products := []*domain.Product{
		{
			Name:        "Wireless Bluetooth Headphones",
			SKU:         "WBH-001",
			Category:    "Electronics",
			Price:       price("79.99"),
			Stock:       45,
			Status:      domain.StatusActive,
			Description: "High-quality wireless headphones with noise cancellation",
			CreatedAt:   day(time.January, 15),
		},
		{
			Name:        "Premium Cotton T-Shirt",
			SKU:         "PCT-001",
			Category:    "Clothing",
			Price:       price("24.99"),
			Stock:       120,
			Status:      domain.StatusActive,
			Description: "Comfortable 100% cotton t-shirt",
			CreatedAt:   day(time.January, 20),
		},
		{
			Name:        "Smart Watch Series 5",
			SKU:         "SWS-005",
			Category:    "Electronics",
			Price:       price("299.99"),
			Stock:       15,
			Status:      domain.StatusActive,
			Description: "Advanced fitness tracking and notifications",
			CreatedAt:   day(time.February, 1),
		},
		{
			Name:        "Yoga Mat Pro",
			SKU:         "YMP-001",
			Category:    "Sports & Outdoors",
			Price:       price("39.99"),
			Stock:       78,
			Status:      domain.StatusActive,
			Description: "Non-slip premium yoga mat",
			CreatedAt:   day(time.February, 5),
		},
		{
			Name:        "LED Desk Lamp",
			SKU:         "LDL-001",
			Category:    "Home & Garden",
			Price:       price("34.99"),
			Stock:       0,
			Status:      domain.StatusInactive,
			Description: "Adjustable LED lamp with USB charging",
			CreatedAt:   day(time.February, 10),
		},
		{
			Name:        "Organic Green Tea (100 bags)",
			SKU:         "OGT-100",
			Category:    "Food & Beverages",
			Price:       price("12.99"),
			Stock:       200,
			Status:      domain.StatusActive,
			Description: "Premium organic green tea",
			CreatedAt:   day(time.February, 15),
		},
		{
			Name:        "Running Shoes",
			SKU:         "RS-001",
			Category:    "Sports & Outdoors",
			Price:       price("89.99"),
			Stock:       55,
			Status:      domain.StatusActive,
			Description: "Lightweight performance running shoes",
			CreatedAt:   day(time.February, 20),
		},
		{
			Name:        "Bestseller Novel Collection",
			SKU:         "BNC-005",
			Category:    "Books",
			Price:       price("45.99"),
			Stock:       32,
			Status:      domain.StatusActive,
			Description: "Set of 5 bestselling novels",
			CreatedAt:   day(time.February, 25),
		},
	}

	products[0].Variations = []domain.ProductVariation{
		{SKU: "WBH-001-BLK-64", Price: price("79.99"), Stock: 45, Attributes: map[string]string{"color": "Black", "storage": "64GB"}},
		{SKU: "WBH-001-WHT-64", Price: price("79.99"), Stock: 50, Attributes: map[string]string{"color": "White", "storage": "64GB"}},
		{SKU: "WBH-001-BLK-128", Price: price("89.99"), Stock: 50, Attributes: map[string]string{"color": "Black", "storage": "128GB"}},
	}
	for _, p := range products {
		p.OwnerID = SeedOwner
		p.Images = []domain.ProductImage{{URL: placeholderImage}}
	}
	return products
}

// ProductCreator is the write side needed to load the demo catalog
type ProductCreator interface {
	List(ctx context.Context) ([]*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) error
}

// Seed loads the demo catalog when the store is empty
func Seed(ctx context.Context, repo ProductCreator, logger *zap.Logger) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing products: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("Catalog already populated, skipping seed", zap.Int("products", len(existing)))
		return nil
	}

	for _, p := range DemoProducts() {
		if err := repo.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.SKU, err)
		}
	}

	logger.Info("Seeded demo catalog", zap.Int("products", len(DemoProducts())))
	return nil
}
