package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the publication state of a product
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Product represents a catalog entry with its owned images and variations
type Product struct {
	ID          string             `json:"id" db:"id"`
	OwnerID     string             `json:"owner_id" db:"owner_id"`
	Name        string             `json:"name" db:"name"`
	SKU         string             `json:"sku" db:"sku"`
	Category    string             `json:"category" db:"category"`
	Price       decimal.Decimal    `json:"price" db:"price"`
	Stock       int                `json:"stock" db:"stock"`
	Status      Status             `json:"status" db:"status"`
	Description string             `json:"description" db:"description"`
	Images      []ProductImage     `json:"images"`
	Variations  []ProductVariation `json:"variations"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty" db:"updated_at"`
}

// ProductImage is an image reference owned by a product
type ProductImage struct {
	ID           string `json:"id" db:"id"`
	ProductID    string `json:"product_id" db:"product_id"`
	URL          string `json:"url" db:"image_url"`
	DisplayOrder int    `json:"display_order" db:"display_order"`
}

// ProductVariation is a purchasable sub-unit of a product
type ProductVariation struct {
	ID         string            `json:"id" db:"id"`
	ProductID  string            `json:"product_id" db:"product_id"`
	SKU        string            `json:"sku" db:"sku"`
	Price      decimal.Decimal   `json:"price" db:"price"`
	Stock      int               `json:"stock" db:"stock"`
	Attributes map[string]string `json:"attributes" db:"attributes"`
}

// Clone returns a deep copy so callers never share slices or maps
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	c.Images = make([]ProductImage, len(p.Images))
	copy(c.Images, p.Images)
	c.Variations = make([]ProductVariation, len(p.Variations))
	for i, v := range p.Variations {
		c.Variations[i] = v.Clone()
	}
	return &c
}

// Clone returns a copy of the variation with its own attribute map
func (v ProductVariation) Clone() ProductVariation {
	attrs := make(map[string]string, len(v.Attributes))
	for k, val := range v.Attributes {
		attrs[k] = val
	}
	v.Attributes = attrs
	return v
}

// SortImages orders images by display order, keeping insertion order on ties
func SortImages(images []ProductImage) {
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].DisplayOrder < images[j].DisplayOrder
	})
}

// ImageURLs returns image locations in presentation order
func (p *Product) ImageURLs() []string {
	images := append([]ProductImage(nil), p.Images...)
	SortImages(images)
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, img.URL)
	}
	return urls
}
