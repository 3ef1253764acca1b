package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/api/handlers"
	"github.com/policy-rag/backend/internal/bootstrap"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/internal/middleware/ratelimit"
	"github.com/policy-rag/backend/internal/middleware/security"
	"github.com/policy-rag/backend/internal/middleware/validation"
	"github.com/policy-rag/backend/pkg/config"
	appLogger "github.com/policy-rag/backend/pkg/logger"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(appLogger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting policy RAG API server")
	metrics.Init()

	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer container.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: float64(cfg.Server.RateLimit),
		Burst:             cfg.Server.RateBurst,
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: security.ParseOrigins(cfg.Server.AllowedOrigins),
	}))

	queryHandler := handlers.NewQueryHandler(container.Query)
	sessionHandler := handlers.NewSessionHandler(container.Sessions, container.Bus)
	documentHandler := handlers.NewDocumentHandler(container.Query)
	governanceHandler := handlers.NewGovernanceHandler(container.Governance, container.Records, cfg.PDF.Dir, cfg.Governance.FailedFile, container.Bus)
	categoryHandler := handlers.NewCategoryHandler(container.Categorizer, container.Library, cfg.Categories.File, container.Bus)
	wsHandler := handlers.NewWebSocketHandler(container.Query, container.Bus)

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	api.Post("/sessions", sessionHandler.Create)
	api.Get("/sessions/:id", sessionHandler.Get)
	api.Delete("/sessions/:id", sessionHandler.Delete)
	api.Put("/sessions/:id/tier", sessionHandler.SetTier)

	api.Post("/ask", limiter.Middleware(), queryHandler.HandleAsk)

	api.Get("/documents", documentHandler.List)
	api.Post("/documents/ingest", limiter.Middleware(), documentHandler.Ingest)
	api.Get("/documents/download", documentHandler.Download)

	api.Post("/governance/extract", limiter.Middleware(), governanceHandler.Extract)
	api.Get("/governance/records", governanceHandler.Records)
	api.Get("/governance/events", governanceHandler.Events)
	api.Get("/governance/failed", governanceHandler.Failed)

	api.Get("/categories", categoryHandler.Get)
	api.Post("/categories/refresh", limiter.Middleware(), categoryHandler.Refresh)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Unix(),
			"sessions": container.Sessions.Count(),
		})
	})

	api.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/ask", websocket.New(wsHandler.HandleAsk))
	app.Get("/ws/events", websocket.New(wsHandler.HandleEvents))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
