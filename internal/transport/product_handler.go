package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"catalog-admin/internal/domain"
	"catalog-admin/internal/form"
	"catalog-admin/internal/middleware"
	"catalog-admin/internal/service"
	"catalog-admin/internal/storage"
	"catalog-admin/internal/view"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// VariationRequest represents one variation in a product payload
type VariationRequest struct {
	SKU        string            `json:"sku" validate:"max=64"`
	Price      json.Number       `json:"price"`
	Stock      json.Number       `json:"stock"`
	Attributes map[string]string `json:"attributes" validate:"dive,keys,max=64,endkeys,max=128"`
}

// ProductRequest represents the create and update payload.
// Required fields and numeric rules are checked by the product form.
type ProductRequest struct {
	Name        string             `json:"name" validate:"max=200"`
	SKU         string             `json:"sku" validate:"max=64"`
	Category    string             `json:"category" validate:"max=100"`
	Price       json.Number        `json:"price"`
	Stock       json.Number        `json:"stock"`
	Status      string             `json:"status" validate:"omitempty,oneof=active inactive"`
	Description string             `json:"description" validate:"max=5000"`
	Images      []string           `json:"images" validate:"max=20,dive,max=2048"`
	Variations  []VariationRequest `json:"variations" validate:"max=100,dive"`
}

// Draft converts the payload into a form draft. Missing stock counts as zero.
func (r ProductRequest) Draft() form.Draft {
	d := form.Draft{
		Name:        r.Name,
		SKU:         r.SKU,
		Category:    r.Category,
		Price:       r.Price.String(),
		Stock:       numberOr(r.Stock, "0"),
		Status:      domain.Status(r.Status),
		Description: r.Description,
		Images:      r.Images,
		Variations:  make([]form.VariationDraft, 0, len(r.Variations)),
	}
	for _, v := range r.Variations {
		d.Variations = append(d.Variations, form.VariationDraft{
			SKU:        v.SKU,
			Price:      v.Price.String(),
			Stock:      numberOr(v.Stock, "0"),
			Attributes: v.Attributes,
		})
	}
	return d
}

func numberOr(n json.Number, fallback string) string {
	if n == "" {
		return fallback
	}
	return n.String()
}

// ProductListResponse is one page of the catalog
type ProductListResponse struct {
	Items      []domain.Summary `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
}

// ImageUploadResponse lists stored image URLs in upload order
type ImageUploadResponse struct {
	URLs []string `json:"urls"`
}

// ProductHandler handles HTTP requests for catalog products
type ProductHandler struct {
	catalog      service.CatalogService
	maxImageSize int64
	maxImages    int
	logger       *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, maxImageSize int64, maxImages int, logger *zap.Logger) *ProductHandler {
	if maxImages < 1 {
		maxImages = 10
	}
	return &ProductHandler{
		catalog:      catalog,
		maxImageSize: maxImageSize,
		maxImages:    maxImages,
		logger:       logger,
	}
}

// RegisterRoutes registers product routes. Reads need a current user, writes also a writer role.
func (h *ProductHandler) RegisterRoutes(r chi.Router, auth, writer func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Use(auth)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(writer)
			r.Post("/", h.Create)
			r.Post("/images", h.UploadImages)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// List handles GET /api/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := view.Query{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 0),
	}

	page, err := h.catalog.List(r.Context(), q)
	if err != nil {
		respondWithServiceError(w, h.logger, "list products", err)
		return
	}

	resp := ProductListResponse{
		Items:      make([]domain.Summary, 0, len(page.Items)),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	}
	for _, p := range page.Items {
		resp.Items = append(resp.Items, domain.Summarize(p))
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, h.logger, "get product", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, domain.Summarize(p))
}

// Create handles POST /api/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "", http.StatusCreated)
}

// Update handles PUT /api/products/{id}; the payload replaces the product entirely
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *ProductHandler) submit(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product payload rejected", zap.Error(err))
		respondWithDecodeError(w, err)
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	f := form.FromDraft(h.catalog.Schema(), id, req.Draft())

	action := "create product"
	if f.Editing() {
		action = "update product"
	}

	p, err := f.Submit(r.Context(), h.catalog.As(userID))
	if err != nil {
		respondWithServiceError(w, h.logger, action, err)
		return
	}
	middleware.RespondWithJSON(w, status, domain.Summarize(p))
}

// Delete handles DELETE /api/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, h.logger, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImages handles multipart POST /api/products/images with one or more "images" parts
func (h *ProductHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	limit := h.maxImageSize*int64(h.maxImages) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["images"]
	if len(headers) > h.maxImages {
		middleware.RespondWithError(w, http.StatusBadRequest, "too many images, at most "+strconv.Itoa(h.maxImages))
		return
	}

	files := make([]storage.ImageFile, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "unreadable image "+fh.Filename)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "unreadable image "+fh.Filename)
			return
		}
		files = append(files, storage.ImageFile{Name: fh.Filename, Data: data})
	}

	urls, err := h.catalog.UploadImages(r.Context(), files)
	if err != nil {
		respondWithServiceError(w, h.logger, "upload images", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, ImageUploadResponse{URLs: urls})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
