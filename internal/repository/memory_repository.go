package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"catalog-admin/internal/domain"

	"github.com/google/uuid"
)

type memoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	order    map[string]int64
	seq      int64
	now      func() time.Time
}

// NewMemoryProductRepository creates an in-process ProductRepository holding the given products.
// Products are copied on every read and write so callers never alias stored state.
func NewMemoryProductRepository(seed ...*domain.Product) ProductRepository {
	r := &memoryProductRepository{
		products: make(map[string]*domain.Product),
		order:    make(map[string]int64),
		now:      time.Now,
	}
	for _, p := range seed {
		_ = r.Create(context.Background(), p.Clone())
	}
	return r
}

func (r *memoryProductRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// List returns products newest first; equal timestamps keep the most recent insert first
func (r *memoryProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list products", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		products = append(products, p.Clone())
	}
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return r.order[a.ID] > r.order[b.ID]
	})

	return products, nil
}

func (r *memoryProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find product by ID", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return p.Clone(), nil
}

func (r *memoryProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return unavailable("create product", err)
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = r.now().UTC()
	}
	if product.Status == "" {
		product.Status = domain.StatusActive
	}
	assignChildIDs(product)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.order[product.ID] = r.seq
	r.products[product.ID] = product.Clone()
	return nil
}

func (r *memoryProductRepository) Update(ctx context.Context, product *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return unavailable("update product", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.products[product.ID]
	if !ok {
		return ErrProductNotFound
	}

	now := r.now().UTC()
	product.OwnerID = existing.OwnerID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = &now
	assignChildIDs(product)

	r.products[product.ID] = product.Clone()
	return nil
}

func (r *memoryProductRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete product", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	delete(r.order, id)
	return nil
}

func (r *memoryProductRepository) ReferencedImages(ctx context.Context, urls []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find referenced images", err)
	}

	wanted := make(map[string]bool, len(urls))
	for _, u := range urls {
		wanted[u] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	referenced := make(map[string]bool)
	for _, p := range r.products {
		for _, img := range p.Images {
			if wanted[img.URL] {
				referenced[img.URL] = true
			}
		}
	}
	return referenced, nil
}

func assignChildIDs(product *domain.Product) {
	if product.Images == nil {
		product.Images = []domain.ProductImage{}
	}
	if product.Variations == nil {
		product.Variations = []domain.ProductVariation{}
	}
	for i := range product.Images {
		if product.Images[i].ID == "" {
			product.Images[i].ID = uuid.NewString()
		}
		product.Images[i].ProductID = product.ID
	}
	domain.SortImages(product.Images)
	for i := range product.Variations {
		if product.Variations[i].ID == "" {
			product.Variations[i].ID = uuid.NewString()
		}
		product.Variations[i].ProductID = product.ID
		if product.Variations[i].Attributes == nil {
			product.Variations[i].Attributes = map[string]string{}
		}
	}
}
