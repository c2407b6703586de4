package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shippingrates/internal/carrier"
	"shippingrates/internal/config"
	"shippingrates/internal/db"
	"shippingrates/internal/logging"
	"shippingrates/internal/metrics"
	"shippingrates/internal/server"
	"shippingrates/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Fatal("DATABASE_URL not set. Please export DATABASE_URL before running.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(startCtx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		logger.Fatal("failed to connect db", zap.Error(err))
	}
	defer pool.Close()
	// Verify connectivity proactively
	if err := pool.Ping(startCtx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	if err := db.Migrate(startCtx, pool); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	st := store.NewPostgres(pool)

	carriers, err := config.LoadCarriers(cfg.CarriersFile)
	if err != nil {
		logger.Fatal("failed to load carriers", zap.String("path", cfg.CarriersFile), zap.Error(err))
	}
	dynamic, err := st.ListDynamicCarriers(startCtx)
	if err != nil {
		logger.Fatal("failed to load feed carriers", zap.Error(err))
	}
	catalog := carrier.NewCatalog()
	snap := catalog.Replace(carriers.Static, dynamic, carriers.Allowed)
	logger.Info("carrier catalog loaded",
		zap.Int("static", len(carriers.Static)),
		zap.Int("dynamic", len(dynamic)),
		zap.Uint64("generation", snap.Generation))

	if cfg.FeedWebhookSecret == "" {
		logger.Warn("FEED_WEBHOOK_SECRET not set, carrier feed pushes will be rejected")
	}

	h := server.New(server.Deps{
		Store:      st,
		Catalog:    catalog,
		Logger:     logger,
		Metrics:    metrics.New(),
		FeedSecret: cfg.FeedWebhookSecret,
		FeedFamily: cfg.FeedCarrierFamily,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
