package transport

import (
	"net/http"

	"catalog-admin/internal/catalog"
	"catalog-admin/internal/form"
	"catalog-admin/internal/middleware"
	"catalog-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Variation form steps
const (
	StepAdd      = "add"
	StepUpdate   = "update"
	StepRemove   = "remove"
	StepCategory = "category"
)

// FormStepRequest applies one editing step to a posted draft
type FormStepRequest struct {
	Draft form.Draft `json:"draft"`
	Step  string     `json:"step" validate:"required,oneof=add update remove category"`
	Index int        `json:"index" validate:"gte=0"`
	Field string     `json:"field"`
	Value string     `json:"value"`
}

// FormHandler runs form steps for clients that keep drafts server-side
type FormHandler struct {
	catalog service.CatalogService
	schema  *catalog.Schema
	logger  *zap.Logger
}

// NewFormHandler creates a new FormHandler
func NewFormHandler(catalogService service.CatalogService, logger *zap.Logger) *FormHandler {
	return &FormHandler{catalog: catalogService, schema: catalogService.Schema(), logger: logger}
}

// RegisterRoutes registers form routes
func (h *FormHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/forms", func(r chi.Router) {
		r.Use(auth)
		r.Get("/products/{id}", h.Edit)
		r.Post("/variations", h.Variations)
	})
}

// Edit handles GET /api/forms/products/{id} and returns the stored product as a prefilled draft
func (h *FormHandler) Edit(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, h.logger, "load product form", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, form.New(h.schema, product).Draft())
}

// Variations handles POST /api/forms/variations and returns the resulting draft
func (h *FormHandler) Variations(w http.ResponseWriter, r *http.Request) {
	var req FormStepRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}

	f := form.FromDraft(h.schema, "", req.Draft)

	var err error
	switch req.Step {
	case StepAdd:
		f.AddVariation()
	case StepUpdate:
		err = f.UpdateVariation(req.Index, req.Field, req.Value)
	case StepRemove:
		err = f.RemoveVariation(req.Index)
	case StepCategory:
		f.SelectCategory(req.Value)
	}
	if err != nil {
		respondWithServiceError(w, h.logger, "edit variations", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, f.Draft())
}
