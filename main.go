// api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"storepulse/api/config"
	"storepulse/api/database"
	"storepulse/api/handlers"
	"storepulse/api/llm"
	"storepulse/api/logging"
	"storepulse/api/middleware"
	"storepulse/api/normalizer"
	"storepulse/api/retention"
	"storepulse/api/rollupcache"
	"storepulse/api/service"
	"storepulse/api/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Event store ---
	var events store.EventStore
	switch cfg.StoreBackend {
	case config.BackendClickHouse:
		chClient, err := database.NewClickHouseDB(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to initialize ClickHouse database: %v", err)
		}
		defer chClient.Close()
		if err := chClient.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create ClickHouse schema: %v", err)
		}
		events = store.NewBreakerEventStore(store.NewClickHouseEventStore(chClient), store.DefaultBreakerConfig())
	default:
		log.Warn("STORE_BACKEND=memory, events are lost on restart")
		events = store.NewMemoryEventStore()
	}

	// --- Side stores (shoppers, verification, insights) ---
	deps := service.Deps{Events: events}
	if cfg.DatabaseURL != "" {
		dbClient, err := database.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		defer dbClient.Close()
		if err := dbClient.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create PostgreSQL schema: %v", err)
		}
		db := store.NewSQLDB(dbClient.DB)
		deps.Shoppers = store.NewShopperNumberStore(db)
		deps.Verifications = store.NewVerificationTable(db)
		deps.Insights = store.NewInsightTable(db)
	} else {
		log.Warn("DATABASE_URL not set, shopper numbers, verifications and insights are kept in memory")
	}

	// --- Enrichment ---
	var opts []normalizer.Option
	if cfg.GeoIPDBPath != "" {
		geo, err := normalizer.OpenGeoIP(cfg.GeoIPDBPath)
		if err != nil {
			log.Fatalf("Failed to open GeoIP database: %v", err)
		}
		defer geo.Close()
		opts = append(opts, normalizer.WithGeoLookup(geo))
	}
	deps.Normalizer = normalizer.New(opts...)

	gateway, err := llm.NewOpenAIClient(cfg.OpenAI)
	switch {
	case errors.Is(err, llm.ErrDisabled):
		log.Info("OPENAI_API_KEY not set, session analysis and briefs are disabled")
		deps.LLM = llm.Disabled{}
	case err != nil:
		log.Fatalf("Failed to initialize LLM gateway: %v", err)
	default:
		deps.LLM = gateway
	}

	// --- Projection cache and retention ---
	cache, err := rollupcache.New(cfg.RollupCacheSize, cfg.RollupCacheTTL, nil)
	if err != nil {
		log.Fatalf("Failed to initialize rollup cache: %v", err)
	}
	deps.Cache = cache
	deps.Policy = retention.NewPolicy(cfg.RetentionHours)
	deps.Settings = service.Settings{
		AbandonAfter:          cfg.AbandonAfter(),
		CheckoutDrop:          cfg.CheckoutDrop(),
		RealtimeWindowMinutes: cfg.RealtimeWindowMinutes,
		RealtimeTopK:          cfg.RealtimeTopK,
		QueryTimeout:          cfg.QueryTimeout,
	}
	svc := service.New(deps)

	sweeper := retention.NewSweeper(events, cache, deps.Policy, nil, cfg.SweepInterval)
	go sweeper.Run(ctx)

	limiter := middleware.NewRateLimiter(cfg.IngestRatePerSec, cfg.IngestBurst)
	go limiter.StartCleanup(5 * time.Minute)
	defer limiter.Stop()

	// --- HTTP ---
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(cfg.FrontendOrigin))
	handlers.InitRoutes(r, svc, limiter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Go API server starting on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Go API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
