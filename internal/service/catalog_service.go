package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"catalog-admin/internal/cache"
	"catalog-admin/internal/catalog"
	"catalog-admin/internal/domain"
	"catalog-admin/internal/events"
	"catalog-admin/internal/form"
	"catalog-admin/internal/metrics"
	"catalog-admin/internal/repository"
	"catalog-admin/internal/storage"
	"catalog-admin/internal/view"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoCurrentUser     = errors.New("no current user")
	ErrImagesUnavailable = errors.New("image storage not configured")
	ErrNoImagesToUpload  = errors.New("no images to upload")
)

// CategoryCount is the number of products filed under a category
type CategoryCount struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attributes"`
	Products   int      `json:"products"`
	Active     int      `json:"active"`
}

// StockAlert flags a product running out of stock
type StockAlert struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	TotalStock int    `json:"total_stock"`
	Level      string `json:"level"`
	Message    string `json:"message"`
}

const (
	AlertOutOfStock = "out_of_stock"
	AlertLowStock   = "low_stock"
)

// CatalogService defines the catalog business operations
type CatalogService interface {
	Schema() *catalog.Schema
	List(ctx context.Context, q view.Query) (view.Page, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, ownerID string, product *domain.Product) (*domain.Product, error)
	Update(ctx context.Context, ownerID, id string, product *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	UploadImages(ctx context.Context, files []storage.ImageFile) ([]string, error)
	Categories(ctx context.Context) ([]CategoryCount, error)
	LowStock(ctx context.Context, threshold int) ([]StockAlert, error)
	As(ownerID string) form.Submitter
}

// Options carries the optional collaborators of the catalog service
type Options struct {
	Cache     cache.ProductCache
	Publisher events.Publisher
	Images    *storage.ImageUploader
	ImageBase string
	PageSize  int
}

type catalogService struct {
	repo      repository.ProductRepository
	schema    *catalog.Schema
	cache     cache.ProductCache
	publisher events.Publisher
	images    *storage.ImageUploader
	imageBase string
	pageSize  int
	logger    *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(repo repository.ProductRepository, schema *catalog.Schema, opts Options, logger *zap.Logger) CatalogService {
	s := &catalogService{
		repo:      repo,
		schema:    schema,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		images:    opts.Images,
		imageBase: opts.ImageBase,
		pageSize:  opts.PageSize,
		logger:    logger,
	}
	if s.cache == nil {
		s.cache = cache.NewNopProductCache()
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.pageSize < 1 {
		s.pageSize = view.DefaultPageSize
	}
	return s
}

func (s *catalogService) Schema() *catalog.Schema {
	return s.schema
}

// List returns one page of the filtered catalog. On store failure the page is
// empty and the error is returned so callers can keep showing what they had.
func (s *catalogService) List(ctx context.Context, q view.Query) (view.Page, error) {
	if q.PageSize < 1 {
		q.PageSize = s.pageSize
	}

	start := time.Now()
	products, err := s.repo.List(ctx)
	metrics.ObserveStore("list", start)
	if err != nil {
		s.logger.Error("Failed to list products", zap.Error(err))
		return view.Paginate(nil, 1, q.PageSize), err
	}

	return view.Apply(products, q), nil
}

// Get reads through the product cache. A fill is dropped when a write
// invalidated the product while it was being loaded.
func (s *catalogService) Get(ctx context.Context, id string) (*domain.Product, error) {
	lookup, cacheErr := s.cache.Get(ctx, id)
	if cacheErr != nil {
		s.logger.Warn("Product cache read failed", zap.String("product_id", id), zap.Error(cacheErr))
	} else if lookup.Hit {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return lookup.Product, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	start := time.Now()
	product, err := s.repo.FindByID(ctx, id)
	metrics.ObserveStore("get", start)
	if err != nil {
		return nil, err
	}

	if cacheErr != nil {
		return product, nil
	}
	if err := s.cache.Set(ctx, product, lookup.Generation); errors.Is(err, cache.ErrStaleFill) {
		s.logger.Debug("Skipped caching product changed during read", zap.String("product_id", id))
	} else if err != nil {
		s.logger.Warn("Product cache write failed", zap.String("product_id", id), zap.Error(err))
	}
	return product, nil
}

// Create validates and stores a new product owned by ownerID.
// When the store rejected the rows and rolled them back, uploaded blobs no
// other product uses are removed. A transient failure keeps them for the retry.
func (s *catalogService) Create(ctx context.Context, ownerID string, product *domain.Product) (*domain.Product, error) {
	if ownerID == "" {
		return nil, ErrNoCurrentUser
	}
	if err := form.ValidateProduct(s.schema, product, true); err != nil {
		return nil, err
	}
	s.warnOptions(product)

	p := product.Clone()
	p.ID = uuid.NewString()
	p.OwnerID = ownerID
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = nil

	start := time.Now()
	err := s.repo.Create(ctx, p)
	metrics.ObserveStore("create", start)
	metrics.RecordWrite("create", err)
	if err != nil {
		s.recordPartial(err)
		if rejected(err) {
			s.releaseImages(ctx, p.ImageURLs())
		}
		s.logger.Error("Failed to create product", zap.String("sku", p.SKU), zap.Error(err))
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", p.ID),
		zap.String("sku", p.SKU),
		zap.String("owner_id", ownerID),
	)
	s.publish(ctx, events.New(events.ProductCreated, p.ID))
	return p, nil
}

// Update replaces every field and child of an existing product
func (s *catalogService) Update(ctx context.Context, ownerID, id string, product *domain.Product) (*domain.Product, error) {
	if ownerID == "" {
		return nil, ErrNoCurrentUser
	}
	if err := form.ValidateProduct(s.schema, product, false); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.warnOptions(product)

	p := product.Clone()
	p.ID = id
	for i := range p.Images {
		p.Images[i].ID = ""
	}
	for i := range p.Variations {
		p.Variations[i].ID = ""
	}

	start := time.Now()
	err = s.repo.Update(ctx, p)
	metrics.ObserveStore("update", start)
	metrics.RecordWrite("update", err)
	if err != nil {
		s.recordPartial(err)
		s.logger.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.invalidate(ctx, id)
	s.releaseImages(ctx, droppedImages(existing, p))
	s.logger.Info("Product updated", zap.String("product_id", id), zap.String("owner_id", ownerID))
	s.publish(ctx, events.New(events.ProductUpdated, id))
	return p, nil
}

// Delete removes a product with its images and variations
func (s *catalogService) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.repo.Delete(ctx, id)
	metrics.ObserveStore("delete", start)
	metrics.RecordWrite("delete", err)
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.releaseImages(ctx, existing.ImageURLs())
	s.logger.Info("Product deleted", zap.String("product_id", id))
	s.publish(ctx, events.New(events.ProductDeleted, id))
	return nil
}

// UploadImages stores image files and returns their public URLs in input order
func (s *catalogService) UploadImages(ctx context.Context, files []storage.ImageFile) ([]string, error) {
	if s.images == nil {
		return nil, ErrImagesUnavailable
	}
	if len(files) == 0 {
		return nil, ErrNoImagesToUpload
	}

	stored, err := s.images.Upload(ctx, "", files)
	if err != nil {
		return nil, fmt.Errorf("failed to upload images: %w", err)
	}

	urls := make([]string, len(stored))
	for i, img := range stored {
		urls[i] = img.URL
	}
	metrics.ImagesUploadedTotal.Add(float64(len(urls)))
	return urls, nil
}

// Categories counts products per schema category
func (s *catalogService) Categories(ctx context.Context) ([]CategoryCount, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]*CategoryCount)
	out := make([]CategoryCount, 0, len(s.schema.Categories()))
	for _, c := range s.schema.Describe() {
		out = append(out, CategoryCount{Name: c.Name, Attributes: c.Attributes})
	}
	for i := range out {
		counts[out[i].Name] = &out[i]
	}
	for _, p := range products {
		if c, ok := counts[p.Category]; ok {
			c.Products++
			if p.Status == domain.StatusActive {
				c.Active++
			}
		}
	}
	return out, nil
}

// LowStock returns products whose total stock is at or below threshold, emptiest first
func (s *catalogService) LowStock(ctx context.Context, threshold int) ([]StockAlert, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	alerts := []StockAlert{}
	for _, p := range products {
		total := domain.TotalStock(p)
		if total > threshold {
			continue
		}
		alert := StockAlert{
			ProductID:  p.ID,
			Name:       p.Name,
			SKU:        p.SKU,
			TotalStock: total,
			Level:      AlertLowStock,
			Message:    fmt.Sprintf("Low stock alert: %s has %d left", p.Name, total),
		}
		if total == 0 {
			alert.Level = AlertOutOfStock
			alert.Message = fmt.Sprintf("Out of stock: %s", p.Name)
		}
		alerts = append(alerts, alert)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].TotalStock < alerts[j].TotalStock
	})
	return alerts, nil
}

// As binds the service to the current user for form submission
func (s *catalogService) As(ownerID string) form.Submitter {
	return ownerSubmitter{svc: s, ownerID: ownerID}
}

type ownerSubmitter struct {
	svc     CatalogService
	ownerID string
}

func (o ownerSubmitter) Create(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	return o.svc.Create(ctx, o.ownerID, p)
}

func (o ownerSubmitter) Update(ctx context.Context, id string, p *domain.Product) (*domain.Product, error) {
	return o.svc.Update(ctx, o.ownerID, id, p)
}

func (s *catalogService) warnOptions(p *domain.Product) {
	for sku, bad := range form.OptionWarnings(s.schema, p) {
		s.logger.Warn("Variation attribute outside allowed options",
			zap.String("sku", sku),
			zap.Any("attributes", bad),
		)
	}
}

func (s *catalogService) recordPartial(err error) {
	var partial *repository.PartialWriteError
	if errors.As(err, &partial) {
		metrics.PartialWritesTotal.Inc()
		s.logger.Error("Partial product write",
			zap.String("product_id", partial.ProductID),
			zap.String("stage", partial.Stage),
			zap.Bool("rolled_back", partial.RolledBack),
			zap.Error(partial.Err),
		)
	}
}

func (s *catalogService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}

// publish never fails the write; the change is already committed
func (s *catalogService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		metrics.EventsPublishFailedTotal.Inc()
		s.logger.Warn("Failed to publish catalog event",
			zap.String("type", string(ev.Type)),
			zap.String("product_id", ev.ProductID),
			zap.Error(err),
		)
	}
}

// rejected reports a write the store refused and fully rolled back, as
// opposed to one that may succeed when retried.
func rejected(err error) bool {
	var partial *repository.PartialWriteError
	return errors.As(err, &partial) &&
		partial.RolledBack &&
		!errors.Is(err, repository.ErrStoreUnavailable)
}

// releaseImages removes our blobs for urls that no stored product references.
// If references cannot be checked the blobs are kept.
func (s *catalogService) releaseImages(ctx context.Context, urls []string) {
	if s.images == nil || s.imageBase == "" {
		return
	}

	owned := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := storage.KeyFromURL(s.imageBase, u); ok {
			owned = append(owned, u)
		}
	}
	if len(owned) == 0 {
		return
	}

	referenced, err := s.repo.ReferencedImages(ctx, owned)
	if err != nil {
		s.logger.Warn("Keeping images whose references could not be checked",
			zap.Strings("urls", owned),
			zap.Error(err),
		)
		return
	}

	var keys []string
	for _, u := range owned {
		if referenced[u] {
			continue
		}
		key, _ := storage.KeyFromURL(s.imageBase, u)
		keys = append(keys, key)
	}
	s.images.Cleanup(keys)
}

func droppedImages(before, after *domain.Product) []string {
	kept := make(map[string]struct{}, len(after.Images))
	for _, img := range after.Images {
		kept[img.URL] = struct{}{}
	}
	var dropped []string
	for _, img := range before.Images {
		if _, ok := kept[img.URL]; !ok {
			dropped = append(dropped, img.URL)
		}
	}
	return dropped
}
