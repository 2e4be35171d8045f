package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalog-admin/internal/cache"
	"catalog-admin/internal/catalog"
	"catalog-admin/internal/config"
	"catalog-admin/internal/database"
	"catalog-admin/internal/events"
	"catalog-admin/internal/metrics"
	custommiddleware "catalog-admin/internal/middleware"
	"catalog-admin/internal/repository"
	"catalog-admin/internal/service"
	"catalog-admin/internal/storage"
	"catalog-admin/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger

	db     database.Service
	repo   repository.ProductRepository
	redis  *redis.Client
	kafka  *events.KafkaPublisher
	images *storage.ImageUploader
}

// New wires the catalog from configuration. Optional backends that cannot be
// reached (Redis, MinIO) are logged and left out; the database is required.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{config: cfg, logger: logger}

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}
	s.openRedis(ctx)

	productCache := cache.NewNopProductCache()
	if s.redis != nil && cfg.Catalog.CacheTTL > 0 {
		productCache = cache.NewRedisProductCache(s.redis, cfg.Catalog.CacheTTL)
	}

	publisher, feed := s.openEvents()

	imageBase := s.openImages(ctx)

	schema := catalog.Default()
	catalogService := service.NewCatalogService(s.repo, schema, service.Options{
		Cache:     productCache,
		Publisher: publisher,
		Images:    s.images,
		ImageBase: imageBase,
		PageSize:  cfg.Catalog.PageSize,
	}, logger)

	s.Server = &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     s.routes(schema, catalogService, feed),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: the change feed is a long-lived response
	}

	return s, nil
}

func (s *Server) routes(schema *catalog.Schema, catalogService service.CatalogService, feed events.Subscriber) http.Handler {
	cfg := s.config
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(s.logger))
	router.Use(custommiddleware.LoggingMiddleware(s.logger))
	router.Use(metrics.Middleware)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, s.logger)
	auth := authMiddleware
	if cfg.RateLimit.Enabled && s.redis != nil {
		limiter := custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "catalog:ratelimit",
		}, s.logger)
		auth = func(next http.Handler) http.Handler {
			return authMiddleware(limiter(next))
		}
	}
	writer := custommiddleware.RequireRole(cfg.JWT.WriterRoles, s.logger)

	transport.NewCatalogHandler(schema).RegisterRoutes(router)
	transport.NewEventsHandler(feed, s.logger).RegisterRoutes(router, authMiddleware)
	transport.NewProductHandler(catalogService, cfg.Storage.MaxImageBytes, cfg.Storage.MaxImages, s.logger).
		RegisterRoutes(router, auth, writer)
	transport.NewDashboardHandler(catalogService, cfg.Catalog.LowStockThreshold, s.logger).RegisterRoutes(router, auth)
	transport.NewFormHandler(catalogService, s.logger).RegisterRoutes(router, auth)

	return router
}

func (s *Server) openStore(ctx context.Context) error {
	cfg := s.config

	switch cfg.Database.Driver {
	case "memory":
		s.logger.Warn("Using in-memory product store; data is lost on restart")
		s.repo = repository.NewMemoryProductRepository()
	default:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return err
		}
		s.logger.Info("Database health check", zap.Any("health", db.Health()))

		if _, err := database.RunMigrations(ctx, db.DB(), cfg.Database.Migrations, s.logger); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		s.db = db
		s.repo = repository.NewProductRepository(db.DB())
	}

	if cfg.Catalog.Seed {
		if err := database.Seed(ctx, s.repo, s.logger); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) openRedis(ctx context.Context) {
	cfg := s.config.Redis
	if cfg.Host == "" {
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("Redis unavailable; cache, rate limiting and shared change feed disabled",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		client.Close()
		return
	}
	s.redis = client
}

// openEvents returns where writes announce changes and where the SSE stream listens
func (s *Server) openEvents() (events.Publisher, events.Subscriber) {
	cfg := s.config.Events
	broker := events.NewBroker(64)

	var shared events.Feed = broker
	if s.redis != nil && (cfg.Driver == "redis" || cfg.Driver == "both") {
		shared = events.NewRedisFeed(s.redis, cfg.RedisChannel, s.logger)
	}

	if (cfg.Driver == "kafka" || cfg.Driver == "both") && len(cfg.KafkaBrokers) > 0 {
		s.kafka = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, s.logger)
		s.logger.Info("Publishing catalog events to Kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
		return events.Fanout{shared, s.kafka}, shared
	}

	return shared, shared
}

func (s *Server) openImages(ctx context.Context) string {
	cfg := s.config.Storage
	if cfg.Endpoint == "" {
		return ""
	}

	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		s.logger.Warn("Image storage disabled", zap.Error(err))
		return ""
	}

	bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := storage.EnsureBucket(bucketCtx, client, cfg.Bucket); err != nil {
		s.logger.Warn("Image storage disabled", zap.String("endpoint", cfg.Endpoint), zap.Error(err))
		return ""
	}

	s.images = storage.NewImageUploader(storage.NewMinioStore(client, cfg), cfg.UploadLimit, cfg.MaxImageBytes, s.logger)
	return storage.PublicBase(cfg)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	if s.db != nil {
		dbHealth := s.db.Health()
		body["database"] = dbHealth
		if dbHealth["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
	} else if err := s.repo.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
	}

	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			body["redis"] = "down"
		} else {
			body["redis"] = "up"
		}
	}

	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	custommiddleware.RespondWithJSON(w, status, body)
}

// Close releases backends after the HTTP server has stopped
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Closing server resources")

	if s.images != nil {
		if err := s.images.Wait(ctx); err != nil {
			s.logger.Warn("Pending image cleanups abandoned", zap.Error(err))
		}
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("Failed to close Kafka writer", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
