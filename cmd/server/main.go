package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dicomkit/dicomweb-server/internal/cache"
	"github.com/dicomkit/dicomweb-server/internal/config"
	"github.com/dicomkit/dicomweb-server/internal/database"
	"github.com/dicomkit/dicomweb-server/internal/dimseecho"
	"github.com/dicomkit/dicomweb-server/internal/event"
	"github.com/dicomkit/dicomweb-server/internal/handlers"
	"github.com/dicomkit/dicomweb-server/internal/httpcache"
	"github.com/dicomkit/dicomweb-server/internal/httpserver"
	"github.com/dicomkit/dicomweb-server/internal/middleware"
	"github.com/dicomkit/dicomweb-server/internal/qido"
	"github.com/dicomkit/dicomweb-server/internal/router"
	"github.com/dicomkit/dicomweb-server/internal/storage"
	"github.com/dicomkit/dicomweb-server/internal/storage/sqlstore"
	"github.com/dicomkit/dicomweb-server/internal/stow"
	"github.com/dicomkit/dicomweb-server/internal/subscription"
	"github.com/dicomkit/dicomweb-server/internal/ups"
	"github.com/dicomkit/dicomweb-server/internal/wado"
	"github.com/dicomkit/dicomweb-server/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting DICOMweb server")

	store, closeStore := buildStore(cfg)
	defer closeStore()

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Type == "redis" {
			addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to connect to Redis")
			}
			log.Info().Msg("Redis cache initialized")
		} else {
			cacheImpl = cache.NewMemoryCache()
			log.Info().Msg("Memory cache initialized")
		}
	} else {
		cacheImpl = cache.NewMemoryCache() // Fallback
		log.Info().Msg("Cache disabled, using memory cache as fallback")
	}

	baseURL := cfg.BaseURL()

	// UPS collaborators: subscription manager, event queue, and a
	// background dispatcher that logs deliveries (spec.md §2 component E
	// "test impl: log").
	subs := subscription.NewManager()
	const eventQueueCapacity = 1000
	queue := event.NewQueue(eventQueueCapacity)
	dispatcher := event.NewDispatcher(queue, event.LogDeliveryService{})
	dispatcher.Start()

	upsStore := ups.NewStore(subs, queue)

	qidoHandler := qido.NewHandler(store, baseURL)
	wadoHandler := wado.NewHandler(store, baseURL)
	stowHandler := stow.NewHandler(store, cfg.DICOMweb.STOW, baseURL)
	upsHandler := ups.NewHandler(upsStore, subs, baseURL)

	var cacheMW *httpcache.Middleware
	if cfg.Cache.Enabled {
		cacheMW = httpcache.New(cacheImpl, cfg.DICOMweb.Cache)
	}

	dicomwebHandler := httpserver.NewHandler(httpserver.Deps{
		QIDO:   qidoHandler,
		WADO:   wadoHandler,
		STOW:   stowHandler,
		UPS:    upsHandler,
		Cache:  cacheMW,
		Config: cfg.DICOMweb,
	})

	dimseChecker := dimseecho.NewChecker(dimseConfigFromEnv())
	defer dimseChecker.Close()

	healthHandler := handlers.NewHealthHandler(store, dimseChecker)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.DICOMweb.RateLimit != nil {
		limiter := middleware.NewRateLimiter(*cfg.DICOMweb.RateLimit)
		defer limiter.Close()
		r.Use(limiter.Middleware)
	}

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	dicomwebRouter := router.New(cfg.DICOMweb.PathPrefix)
	metricsWrapped := httpserver.MetricsMiddleware(dicomwebRouter, dicomwebHandler)

	// DICOMweb endpoints, tenant-scoped per spec.md §6's multi-tenant
	// Open Question: the middleware runs for its header-validation
	// ambient effect only, since storage.Provider has no tenant
	// parameter to scope against.
	r.With(middleware.TenantID(cfg.MultiTenant)).Mount(cfg.DICOMweb.PathPrefix, metricsWrapped)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildStore wires either the in-memory reference Provider or, when
// DICOMWEB_STORAGE_BACKEND=postgres, the GORM-backed sqlstore.Store
// against the teacher's database connection idiom.
func buildStore(cfg *config.Config) (storage.Provider, func()) {
	if os.Getenv("DICOMWEB_STORAGE_BACKEND") != "postgres" {
		return storage.NewMemoryStore(), func() {}
	}

	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}
	if err := database.Connect(dbConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlStore := sqlstore.New(database.DB)
	if err := sqlStore.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run storage migrations")
	}
	log.Info().Msg("Postgres storage backend initialized")

	return sqlStore, func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// dimseConfigFromEnv builds the C-ECHO readiness checker's remote AE
// config. An empty DICOMWEB_REMOTE_AE_HOST leaves DIMSE verification
// disabled (dimseecho.NewChecker returns nil), matching spec.md §1's
// "DIMSE is used only as a consumed library".
func dimseConfigFromEnv() dimseecho.Config {
	host := os.Getenv("DICOMWEB_REMOTE_AE_HOST")
	if host == "" {
		return dimseecho.Config{}
	}
	port := 104
	if p := os.Getenv("DICOMWEB_REMOTE_AE_PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}
	return dimseecho.Config{
		Host:       host,
		Port:       port,
		CallingAET: getEnvDefault("DICOMWEB_CALLING_AET", "DICOMWEB"),
		CalledAET:  getEnvDefault("DICOMWEB_REMOTE_AE_TITLE", "REMOTE"),
	}
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
