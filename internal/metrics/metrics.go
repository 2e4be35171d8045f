package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_product_writes_total",
		Help: "Product writes by operation and outcome",
	}, []string{"operation", "result"})

	PartialWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_partial_writes_total",
		Help: "Product writes that failed after the product row was written",
	})

	ImagesUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_images_uploaded_total",
		Help: "Images stored in the blob store",
	})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_lookups_total",
		Help: "Product cache lookups by result",
	}, []string{"result"})

	EventsPublishFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_events_publish_failed_total",
		Help: "Change events that could not be published",
	})

	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_store_latency_seconds",
		Help:    "Latency of product store calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// ObserveStore records the duration of a store call started at start
func ObserveStore(operation string, start time.Time) {
	StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordWrite counts a product write outcome
func RecordWrite(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ProductWritesTotal.WithLabelValues(operation, result).Inc()
}

// Middleware records request count and latency labelled by route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := strconv.Itoa(ww.Status())

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
