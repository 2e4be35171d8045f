package transport

import (
	"net/http"

	"catalog-admin/internal/catalog"
	"catalog-admin/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// AttributeOptionsResponse lists the allowed values of one attribute
type AttributeOptionsResponse struct {
	Attribute string   `json:"attribute"`
	Options   []string `json:"options"`
}

// CatalogHandler serves the category schema
type CatalogHandler struct {
	schema *catalog.Schema
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(schema *catalog.Schema) *CatalogHandler {
	return &CatalogHandler{schema: schema}
}

// RegisterRoutes registers public schema routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/catalog", func(r chi.Router) {
		r.Get("/categories", h.Categories)
		r.Get("/attributes/{attribute}/options", h.Options)
	})
}

// Categories handles GET /api/catalog/categories
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.schema.Describe())
}

// Options handles GET /api/catalog/attributes/{attribute}/options.
// Unknown attributes have no options.
func (h *CatalogHandler) Options(w http.ResponseWriter, r *http.Request) {
	attr := chi.URLParam(r, "attribute")
	middleware.RespondWithJSON(w, http.StatusOK, AttributeOptionsResponse{
		Attribute: attr,
		Options:   h.schema.OptionsFor(attr),
	})
}
