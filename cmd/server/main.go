package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contextd/internal/config"
	"contextd/internal/engine"
	"contextd/internal/handlers"
	"contextd/internal/jobs"
	"contextd/internal/logging"
	"contextd/internal/metrics"
	"contextd/internal/middleware"
	"contextd/internal/quickreply"
	"contextd/internal/selector"
	"contextd/internal/store"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting contextd server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Store: %s)", cfg.Port, cfg.StorePath)

	// Open the conversation store (explicit lifecycle: open → flush → close)
	st, err := store.Open(store.Options{
		Path:                       cfg.StorePath,
		QuotaBytes:                 cfg.StorageQuotaBytes,
		FlushInterval:              cfg.FlushInterval,
		MaxConversations:           cfg.MaxConversations,
		MaxMessagesPerConversation: cfg.MaxMessagesPerConversation,
		DefaultWindowSize:          cfg.DefaultWindowSize,
		ExportFormat:               cfg.ExportFormat,
	})
	if err != nil {
		log.Fatalf("❌ Failed to open conversation store: %v", err)
	}

	// Engine metrics
	m := metrics.Init(st)
	st.SetOnFlush(m.StoreFlushes.Inc)

	// Selection + quick-reply services
	sel := selector.New(selector.Config{
		TokenBudget:      cfg.TokenBudget,
		RecentCount:      cfg.RecentCount,
		TopMatches:       cfg.TopMatches,
		RecencyWeight:    cfg.RecencyWeight,
		ImportanceWeight: cfg.ImportanceWeight,
		RelevanceWeight:  cfg.RelevanceWeight,
	})
	quick := quickreply.NewService(cfg.CacheTTL, cfg.CacheMaxEntries)
	eng := engine.New(st, sel, quick, m, cfg.MaxClusters)

	// Background jobs
	scheduler := jobs.NewScheduler()
	scheduler.Register("auto-archive", jobs.NewArchiveJob(st, cfg.AutoArchiveAfter, time.Hour))
	scheduler.Register("backup", jobs.NewBackupJob(st, cfg.BackupDir, 24*time.Hour))
	scheduler.Start()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "contextd v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    10 * 1024 * 1024, // 10MB for large conversation payloads
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("contextd")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Rate limiting
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Context=%d/min",
		rateLimitConfig.GlobalAPIMax, rateLimitConfig.ContextMax)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(st)
	convHandler := handlers.NewConversationHandler(st)
	ctxHandler := handlers.NewContextHandler(eng, st)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", rateLimitConfig.GlobalLimiter())
	api.Post("/conversations", convHandler.Create)
	api.Get("/conversations", convHandler.List)
	api.Get("/conversations/:id", convHandler.Get)
	api.Delete("/conversations/:id", convHandler.Delete)
	api.Post("/conversations/:id/clear", convHandler.Clear)
	api.Patch("/conversations/:id/title", convHandler.Rename)
	api.Post("/conversations/:id/pin", convHandler.SetPinned)
	api.Post("/conversations/:id/archive", convHandler.SetArchived)
	api.Patch("/conversations/:id/settings", convHandler.UpdateSettings)
	api.Post("/conversations/:id/messages", convHandler.AddMessage)
	api.Patch("/conversations/:id/messages/:msgId", convHandler.EditMessage)
	api.Get("/conversations/:id/status", convHandler.Status)
	api.Get("/export", convHandler.Export)

	convLimiter := middleware.NewConversationLimiter(cfg.ConversationRate, cfg.ConversationBurst)

	contextAPI := api.Group("", rateLimitConfig.ContextLimiter())
	contextAPI.Post("/conversations/:id/context", convLimiter.Handler(), ctxHandler.Optimize)
	contextAPI.Get("/conversations/:id/analysis", convLimiter.Handler(), ctxHandler.Analyze)
	contextAPI.Post("/quick-reply", ctxHandler.QuickReply)
	contextAPI.Post("/quick-reply/record", ctxHandler.RecordResponse)

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: auto-archive (hourly), backup (daily)")

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		scheduler.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}

		// final flush happens here
		if err := st.Close(); err != nil {
			log.Printf("⚠️  Error closing store: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
