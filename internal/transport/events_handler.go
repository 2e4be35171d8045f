package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"catalog-admin/internal/events"
	"catalog-admin/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const heartbeatInterval = 25 * time.Second

// EventsHandler streams catalog change events as Server-Sent Events
type EventsHandler struct {
	feed      events.Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(feed events.Subscriber, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{feed: feed, heartbeat: heartbeatInterval, logger: logger}
}

// RegisterRoutes registers the change feed route
func (h *EventsHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.With(auth).Get("/api/products/events", h.Stream)
}

// Stream handles GET /api/products/events. Each change is one "event: <type>" frame;
// clients refresh their product list on receipt.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, err := h.feed.Subscribe(r.Context())
	if err != nil {
		h.logger.Error("Failed to subscribe to catalog events", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "change feed unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("Event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
