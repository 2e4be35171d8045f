package transport

import (
	"net/http"

	"catalog-admin/internal/middleware"
	"catalog-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NotificationsResponse carries stock alerts for the dashboard header
type NotificationsResponse struct {
	Threshold int                  `json:"threshold"`
	Alerts    []service.StockAlert `json:"alerts"`
}

// DashboardHandler serves dashboard summaries derived from the catalog
type DashboardHandler struct {
	catalog   service.CatalogService
	threshold int
	logger    *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler; threshold is the default low-stock level
func NewDashboardHandler(catalog service.CatalogService, threshold int, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{catalog: catalog, threshold: threshold, logger: logger}
}

// RegisterRoutes registers dashboard routes
func (h *DashboardHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/dashboard", func(r chi.Router) {
		r.Use(auth)
		r.Get("/categories", h.Categories)
		r.Get("/notifications", h.Notifications)
	})
}

// Categories handles GET /api/dashboard/categories
func (h *DashboardHandler) Categories(w http.ResponseWriter, r *http.Request) {
	counts, err := h.catalog.Categories(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, "count categories", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, counts)
}

// Notifications handles GET /api/dashboard/notifications?threshold=N
func (h *DashboardHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	threshold := queryInt(r, "threshold", h.threshold)
	if threshold < 0 {
		middleware.RespondWithError(w, http.StatusBadRequest, "threshold must not be negative")
		return
	}

	alerts, err := h.catalog.LowStock(r.Context(), threshold)
	if err != nil {
		respondWithServiceError(w, h.logger, "load stock alerts", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, NotificationsResponse{Threshold: threshold, Alerts: alerts})
}
