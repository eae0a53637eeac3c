package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/handlers"
	"inkwell/internal/jobs"
	"inkwell/internal/logging"
	"inkwell/internal/middleware"
	"inkwell/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Inkwell Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	backend := newCacheBackend(cfg)
	defer backend.Close()

	// Registered on the default registry so fiberprometheus serves them on /metrics
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	results := cache.NewResultCache(backend, cache.WithTTL(cfg.CacheTTL), cache.WithObserver(metrics))
	registry := cache.NewRegistry(backend, results, cache.WithTTL(cfg.CacheTTL), cache.WithObserver(metrics))

	analyticsService := services.NewAnalyticsService(db, metrics)
	impressionService := services.NewImpressionService(backend, metrics)
	invalidationService := services.NewInvalidationService(registry, results, analyticsService)
	engagementService := services.NewEngagementService(db, analyticsService, invalidationService, metrics)
	postService := services.NewPostService(db, results, impressionService, analyticsService, engagementService, invalidationService, cfg.PageSize)
	categoryService := services.NewCategoryService(db, results, impressionService, analyticsService, cfg.PageSize)
	commentService := services.NewCommentService(db, results, registry, postService, analyticsService, engagementService, invalidationService, cfg.PageSize)
	log.Println("✅ Blog services initialized")

	// Initialize MongoDB (optional - daily analytics archive)
	var mongoDB *database.MongoDB
	var snapshotJob *jobs.AnalyticsSnapshotJob
	if cfg.MongoDBURI != "" {
		mongoDB, err = database.NewMongoDB(cfg.MongoDBURI)
		if err != nil {
			log.Printf("⚠️  Failed to connect to MongoDB, analytics archive disabled: %v", err)
			mongoDB = nil
		} else if err := mongoDB.Initialize(context.Background()); err != nil {
			log.Printf("⚠️  Failed to initialize MongoDB, analytics archive disabled: %v", err)
			mongoDB.Close(context.Background())
			mongoDB = nil
		} else {
			snapshotJob = jobs.NewAnalyticsSnapshotJob(mongoDB, analyticsService)
			log.Println("✅ MongoDB analytics archive enabled")
		}
	} else {
		log.Println("ℹ️  MONGODB_URI not set, analytics archive disabled")
	}

	reconcileJob := jobs.NewImpressionReconcileJob(impressionService, analyticsService, metrics, cfg.ReconcileRatePerSec)

	jobScheduler, err := jobs.NewJobScheduler(metrics)
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobScheduler.Register("impression_reconcile", cfg.ImpressionReconcileCron, reconcileJob); err != nil {
		log.Fatalf("❌ Failed to register impression reconcile job: %v", err)
	}
	if snapshotJob != nil {
		if err := jobScheduler.Register("analytics_snapshot", cfg.AnalyticsSnapshotCron, snapshotJob); err != nil {
			log.Fatalf("❌ Failed to register analytics snapshot job: %v", err)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "Inkwell v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // comments and posts only
	})

	// Middleware
	app.Use(recover.New())
	if !cfg.IsProduction() {
		app.Use(logger.New())
	}
	app.Use(middleware.RequestLogger(handlers.UserIDHeader))

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("inkwell")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard origins
	allowCredentials := cfg.AllowedOrigin != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigin,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept," + handlers.UserIDHeader + "," + middleware.RequestIDHeader,
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigin)

	rateLimitConfig := middleware.LoadRateLimitConfig(cfg.WriteRateLimit, !cfg.IsProduction())
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Write=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.WriteMax,
	)
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	healthHandler := handlers.NewHealthHandler(db, backend)
	if mongoDB != nil {
		healthHandler.WithArchive(mongoDB)
	}
	app.Get("/health", healthHandler.Handle)

	blogHandlers := handlers.BlogHandlers{
		Posts:      handlers.NewPostHandler(postService, engagementService),
		Categories: handlers.NewCategoryHandler(categoryService),
		Comments:   handlers.NewCommentHandler(commentService),
	}
	if snapshotJob != nil {
		blogHandlers.History = handlers.NewHistoryHandler(postService, snapshotJob)
	}
	handlers.RegisterBlogRoutes(app.Group("/api/blog"), blogHandlers, middleware.WriteRateLimiter(rateLimitConfig))

	jobScheduler.Start()

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: impression reconcile (%s), analytics snapshot (%s)",
		cfg.ImpressionReconcileCron, snapshotSchedule(cfg, snapshotJob))

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop accepting requests first so no impression lands after the final reconcile
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if result, err := reconcileJob.Reconcile(ctx); err != nil {
			log.Printf("⚠️ Final impression reconcile incomplete: %v", err)
		} else {
			log.Printf("✅ Final impression reconcile applied %d impressions", result.Applied)
		}

		if mongoDB != nil {
			if err := mongoDB.Close(ctx); err != nil {
				log.Printf("⚠️ Error closing MongoDB: %v", err)
			}
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}

	// Listen returns once shutdown begins; keep the stores open until the final reconcile is done
	<-shutdownDone
	log.Println("👋 Server stopped")
}

// newCacheBackend connects to Redis when configured and falls back to the
// in-process backend otherwise
func newCacheBackend(cfg *config.Config) cache.Backend {
	var backend cache.Backend
	if cfg.RedisURL != "" {
		redisBackend, err := cache.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Failed to connect to Redis, using in-memory cache: %v", err)
		} else {
			log.Println("✅ Redis cache backend connected")
			backend = redisBackend
		}
	}
	if backend == nil {
		log.Println("ℹ️  Using in-memory cache backend (single instance only)")
		backend = cache.NewMemoryBackend(cfg.CacheTTL)
	}

	if cfg.CacheBreaker {
		log.Println("🛡️  Cache circuit breaker enabled")
		return cache.NewBreakerBackend(backend, cache.DefaultBreakerConfig("cache"))
	}
	return backend
}

func snapshotSchedule(cfg *config.Config, job *jobs.AnalyticsSnapshotJob) string {
	if job == nil {
		return "disabled"
	}
	return cfg.AnalyticsSnapshotCron
}
