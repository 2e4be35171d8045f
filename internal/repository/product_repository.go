package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-admin/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	List(ctx context.Context) ([]*domain.Product, error)
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
	// ReferencedImages returns the subset of urls still attached to any product
	ReferencedImages(ctx context.Context, urls []string) (map[string]bool, error)
	Ping(ctx context.Context) error
}

type productRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewProductRepository creates a Postgres backed ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db, now: time.Now}
}

// Ping checks that the database answers
func (r *productRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

// List returns every product newest first with images and variations populated
func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, owner_id, name, sku, category, price, stock, status, description, created_at, updated_at
		FROM products
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("list products", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	byID := make(map[string]*domain.Product)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, unavailable("scan product", err)
		}
		products = append(products, product)
		byID[product.ID] = product
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable("iterate products", err)
	}

	if len(products) == 0 {
		return products, nil
	}

	if err := r.loadImages(ctx, byID, ""); err != nil {
		return nil, err
	}
	if err := r.loadVariations(ctx, byID, ""); err != nil {
		return nil, err
	}

	return products, nil
}

// FindByID retrieves a product with its owned children
func (r *productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProductNotFound
	}

	query := `
		SELECT id, owner_id, name, sku, category, price, stock, status, description, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, unavailable("find product by ID", err)
	}

	byID := map[string]*domain.Product{product.ID: product}
	if err := r.loadImages(ctx, byID, product.ID); err != nil {
		return nil, err
	}
	if err := r.loadVariations(ctx, byID, product.ID); err != nil {
		return nil, err
	}

	return product, nil
}

// Create inserts the product and its children in one transaction.
// A failed child insert rolls the product row back and returns *PartialWriteError.
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = r.now().UTC()
	}
	if product.Status == "" {
		product.Status = domain.StatusActive
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}

	query := `
		INSERT INTO products (id, owner_id, name, sku, category, price, stock, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = tx.ExecContext(
		ctx,
		query,
		product.ID,
		product.OwnerID,
		product.Name,
		product.SKU,
		product.Category,
		product.Price,
		product.Stock,
		string(product.Status),
		product.Description,
		product.CreatedAt,
		nullTime(product.UpdatedAt),
	)
	if err != nil {
		_ = tx.Rollback()
		return unavailable("create product", err)
	}

	if err := r.writeChildren(ctx, tx, product); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit product", err)
	}

	return nil
}

// Update replaces scalar fields and the whole image and variation sets
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	if _, err := uuid.Parse(product.ID); err != nil {
		return ErrProductNotFound
	}

	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}

	query := `
		UPDATE products
		SET name = $2, sku = $3, category = $4, price = $5, stock = $6,
		    status = $7, description = $8, updated_at = $9
		WHERE id = $1
		RETURNING owner_id, created_at
	`

	err = tx.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.SKU,
		product.Category,
		product.Price,
		product.Stock,
		string(product.Status),
		product.Description,
		now,
	).Scan(&product.OwnerID, &product.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		return unavailable("update product", err)
	}
	product.UpdatedAt = &now

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = $1`, product.ID); err != nil {
		return r.abort(ctx, tx, product.ID, "images", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_variations WHERE product_id = $1`, product.ID); err != nil {
		return r.abort(ctx, tx, product.ID, "variations", err)
	}

	if err := r.writeChildren(ctx, tx, product); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit product", err)
	}

	return nil
}

// Delete removes a product; images and variations cascade
func (r *productRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrProductNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return unavailable("delete product", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *productRepository) ReferencedImages(ctx context.Context, urls []string) (map[string]bool, error) {
	referenced := make(map[string]bool)
	if len(urls) == 0 {
		return referenced, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT image_url FROM product_images WHERE image_url = ANY($1)`, urls)
	if err != nil {
		return nil, unavailable("find referenced images", err)
	}
	defer rows.Close()

	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, unavailable("scan referenced image", err)
		}
		referenced[url] = true
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate referenced images", err)
	}
	return referenced, nil
}

func (r *productRepository) writeChildren(ctx context.Context, tx *sql.Tx, product *domain.Product) error {
	imageQuery := `
		INSERT INTO product_images (id, product_id, image_url, display_order)
		VALUES ($1, $2, $3, $4)
	`
	for i := range product.Images {
		img := &product.Images[i]
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		img.ProductID = product.ID
		if _, err := tx.ExecContext(ctx, imageQuery, img.ID, img.ProductID, img.URL, img.DisplayOrder); err != nil {
			return r.abort(ctx, tx, product.ID, "images", err)
		}
	}

	variationQuery := `
		INSERT INTO product_variations (id, product_id, sku, price, stock, attributes)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`
	for i := range product.Variations {
		v := &product.Variations[i]
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		v.ProductID = product.ID
		if v.Attributes == nil {
			v.Attributes = map[string]string{}
		}
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return r.abort(ctx, tx, product.ID, "variations", err)
		}
		if _, err := tx.ExecContext(ctx, variationQuery, v.ID, v.ProductID, v.SKU, v.Price, v.Stock, string(attrs)); err != nil {
			return r.abort(ctx, tx, product.ID, "variations", err)
		}
	}

	return nil
}

// abort rolls back a half-written product. Causes other than a statement the
// server rejected are marked ErrStoreUnavailable so callers can tell a retry
// may succeed.
func (r *productRepository) abort(ctx context.Context, tx *sql.Tx, productID, stage string, cause error) error {
	rbErr := tx.Rollback()

	var pgErr *pgconn.PgError
	if ctx.Err() != nil || !errors.As(cause, &pgErr) {
		cause = fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
	}
	return &PartialWriteError{
		ProductID:  productID,
		Stage:      stage,
		RolledBack: rbErr == nil,
		Err:        cause,
	}
}

func (r *productRepository) loadImages(ctx context.Context, byID map[string]*domain.Product, productID string) error {
	query := `
		SELECT id, product_id, image_url, display_order
		FROM product_images
		WHERE ($1 = '' OR product_id::text = $1)
		ORDER BY display_order ASC, seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return unavailable("list product images", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img domain.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.DisplayOrder); err != nil {
			return unavailable("scan product image", err)
		}
		if p, ok := byID[img.ProductID]; ok {
			p.Images = append(p.Images, img)
		}
	}

	if err := rows.Err(); err != nil {
		return unavailable("iterate product images", err)
	}
	return nil
}

func (r *productRepository) loadVariations(ctx context.Context, byID map[string]*domain.Product, productID string) error {
	query := `
		SELECT id, product_id, sku, price, stock, attributes
		FROM product_variations
		WHERE ($1 = '' OR product_id::text = $1)
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return unavailable("list product variations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v     domain.ProductVariation
			attrs []byte
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Price, &v.Stock, &attrs); err != nil {
			return unavailable("scan product variation", err)
		}
		v.Attributes = map[string]string{}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &v.Attributes); err != nil {
				return fmt.Errorf("failed to decode variation attributes: %w", err)
			}
		}
		if p, ok := byID[v.ProductID]; ok {
			p.Variations = append(p.Variations, v)
		}
	}

	if err := rows.Err(); err != nil {
		return unavailable("iterate product variations", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		product     domain.Product
		status      string
		description sql.NullString
		updatedAt   sql.NullTime
	)

	err := row.Scan(
		&product.ID,
		&product.OwnerID,
		&product.Name,
		&product.SKU,
		&product.Category,
		&product.Price,
		&product.Stock,
		&status,
		&description,
		&product.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	product.Status = domain.Status(status)
	product.Description = description.String
	if updatedAt.Valid {
		t := updatedAt.Time
		product.UpdatedAt = &t
	}
	product.Images = []domain.ProductImage{}
	product.Variations = []domain.ProductVariation{}

	return &product, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
