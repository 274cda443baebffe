package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"caixaforte/backend/internal/cache"
	"caixaforte/backend/internal/config"
	"caixaforte/backend/internal/httpapi"
	"caixaforte/backend/internal/logging"
	"caixaforte/backend/internal/notify"
	"caixaforte/backend/internal/service"
	"caixaforte/backend/internal/store"
	"caixaforte/backend/internal/store/memory"
	"caixaforte/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("insecure configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres connection failed", zap.Error(err))
		}
		closers = append(closers, pg)
		repo = pg
		logger.Info("using postgres store")
	} else {
		repo = memory.NewSeeded()
		logger.Warn("DATABASE_URL not set, using in-memory store with seed data")
	}

	var kpiCache cache.KPICache = cache.NoopKPICache{}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisKPICache(ctx, cfg.RedisAddr, cfg.KPICacheTTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		} else {
			closers = append(closers, redisCache)
			kpiCache = redisCache
			logger.Info("redis kpi cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.ReceiptWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.ReceiptWebhookURL, logger)
		logger.Info("receipt webhook enabled")
	}

	svc := service.New(repo, kpiCache, notifier, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.TokenTTL, repo)
	api := httpapi.NewServer(svc, auth, logger)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close failed", zap.Error(err))
		}
	}
}

// validateSecurityConfig refuses to start production with credentials that
// would undermine token signing.
func validateSecurityConfig(cfg config.Config) error {
	if !cfg.Production() {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be at least 32 characters in production")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required in production")
	}
	return nil
}
