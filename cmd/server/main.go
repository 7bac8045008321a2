package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"voltdesk/internal/catalog"
	"voltdesk/internal/config"
	"voltdesk/internal/database"
	"voltdesk/internal/extract"
	"voltdesk/internal/handlers"
	"voltdesk/internal/jobs"
	"voltdesk/internal/logging"
	"voltdesk/internal/services"
	"voltdesk/internal/session"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	// Database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Metrics
	metrics := services.InitMetrics()

	// Extraction pipeline
	extractOpts := extract.Options{
		MaxDuration:         cfg.ExtractMaxDuration,
		MaxChars:            cfg.ExtractMaxChars,
		MinLength:           cfg.ExtractMinLength,
		LetterRatio:         cfg.ExtractLetterRatio,
		OCREnabled:          cfg.OCREnabled,
		OCRResolution:       cfg.OCRResolution,
		OCRLanguages:        cfg.OCRLanguages,
		OCRFallbackLanguage: cfg.OCRFallbackLanguage,
	}
	pipeline := extract.NewPipeline(&extract.PopplerRasterizer{}, &extract.TesseractEngine{}, extractOpts)

	// Catalog + manual service
	locator := catalog.NewLocator(db, cfg.ManualsDir)
	manualService := services.NewManualService(locator, pipeline, cfg.ManualCacheTTL, cfg.ManualRequestTimeout, metrics)

	// Sessions
	metadata := session.NewMetadata(db)
	sessionOpts := session.Options{
		SessionsDir:      cfg.SessionsDir,
		DuplicateWindow:  cfg.DuplicateWindow,
		ProductCap:       cfg.ProductCap,
		CategoryKeywords: cfg.CategoryKeywords,
	}
	sessionCache := session.NewCache(metadata, sessionOpts, cfg.CacheCapacity)

	// Startup hydration: pick up session files written while we were down
	if n, err := session.Hydrate(context.Background(), metadata, cfg.SessionsDir); err != nil {
		log.Printf("⚠️ Startup hydration failed: %v", err)
	} else if n > 0 {
		log.Printf("💧 Startup hydration reconciled %d session row(s)", n)
	}

	// Chat orchestration
	responder := services.NewOpenAIResponder(cfg.AssistantBaseURL, cfg.AssistantAPIKey, cfg.AssistantModel, cfg.AssistantTimeout)
	chatService := services.NewChatService(sessionCache, manualService, responder, metrics)

	// Background jobs
	scheduler := jobs.NewScheduler()
	scheduler.Register("hydration", jobs.NewHydrationJob(metadata, cfg.SessionsDir, cfg.HydrationInterval))
	scheduler.Start()

	// Watch the sessions directory for externally dropped files
	go startSessionsDirWatcher(cfg.SessionsDir, metadata)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "VoltDesk v1.0",
		ReadTimeout:  300 * time.Second, // manual extraction can run for minutes
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  300 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("voltdesk")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️ ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	sessionHandler := handlers.NewSessionHandler(metadata, sessionCache, cfg.SessionsDir)
	catalogHandler := handlers.NewCatalogHandler(locator)
	wsHandler := handlers.NewWebSocketHandler(chatService, metrics, 30)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Get("/sessions", sessionHandler.List)
	api.Post("/sessions", sessionHandler.Create)
	api.Get("/sessions/:id", sessionHandler.Get)
	api.Put("/sessions/:id/name", sessionHandler.Rename)
	api.Post("/sessions/:id/archive", sessionHandler.Archive)
	api.Post("/sessions/:id/clear", sessionHandler.Clear)
	api.Delete("/sessions/:id", sessionHandler.Delete)
	api.Post("/admin/hydrate", sessionHandler.Hydrate)
	api.Get("/products", catalogHandler.List)
	api.Post("/products", catalogHandler.Upsert)
	api.Get("/products/search", catalogHandler.Search)

	// WebSocket upgrade gate
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.Handle))

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")
		scheduler.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	log.Printf("🚀 VoltDesk listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// startSessionsDirWatcher re-hydrates the metadata table when session JSON
// files are created or rewritten outside the server, e.g. restored from a
// backup while it runs.
func startSessionsDirWatcher(sessionsDir string, metadata *session.Metadata) {
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		log.Printf("⚠️ Failed to create sessions dir for watching: %v", err)
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ Failed to create sessions watcher: %v", err)
		return
	}
	if err := watcher.Add(sessionsDir); err != nil {
		log.Printf("⚠️ Failed to watch %s: %v", sessionsDir, err)
		watcher.Close()
		return
	}
	log.Printf("👁️ Watching %s for session file changes", sessionsDir)

	// Debounce: a restored backup touches many files at once
	var debounceTimer *time.Timer
	debounceDuration := 2 * time.Second

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if n, err := session.Hydrate(context.Background(), metadata, sessionsDir); err != nil {
						log.Printf("❌ Watcher-triggered hydration failed: %v", err)
					} else if n > 0 {
						log.Printf("💧 Watcher-triggered hydration reconciled %d row(s)", n)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Sessions watcher error: %v", err)
		}
	}
}
