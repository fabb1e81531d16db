package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ohub/outage-aggregator/internal/api"
	"github.com/ohub/outage-aggregator/internal/cache"
	"github.com/ohub/outage-aggregator/internal/config"
	"github.com/ohub/outage-aggregator/internal/ingestion"
	"github.com/ohub/outage-aggregator/internal/logging"
	"github.com/ohub/outage-aggregator/internal/observability"
	"github.com/ohub/outage-aggregator/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	// Warm the cache from the side file left by the previous run.
	outageCache := cache.New()
	if snap, err := cache.LoadSideFile(cfg.Cache.FilePath); err != nil {
		slog.Warn("could not load cache side file", "path", cfg.Cache.FilePath, "error", err)
	} else if snap != nil {
		outageCache.Set(snap.Data, snap.LastUpdated)
		slog.Info("cache warmed from side file", "records", len(snap.Data), "last_updated", snap.LastUpdated)
	}

	refresher := cache.NewRefresher(db, outageCache, cfg.Cache.FilePath, cfg.Cache.RefreshInterval, metrics)
	refresher.Start(ctx)

	// Start ingestion manager
	mgr := ingestion.NewManager(cfg, db, metrics, ingestion.SourcesFromConfig(cfg))
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s global limit

	handler := api.NewHandler(db, outageCache)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
