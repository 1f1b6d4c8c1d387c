package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	webAdapter "boxcard-ledger/internal/adapters/web"
	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/config"
	"boxcard-ledger/internal/core"
	"boxcard-ledger/internal/db"
	"boxcard-ledger/internal/logger"
	"boxcard-ledger/internal/metrics"
	"boxcard-ledger/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.RequireJWT(); err != nil {
		log.Fatal("config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal("database", "error", err)
	}
	defer pool.Close()

	if os.Getenv("SKIP_MIGRATIONS") != "true" {
		res, err := migrations.Apply(ctx, pool)
		if err != nil {
			log.Fatal("migrations", "error", err)
		}
		log.Info("migrations checked", "applied", len(res.Applied), "skipped", len(res.Skipped))
	}

	m := metrics.NewLedger()
	rollups := core.NewRollupAggregator(pool)
	ledger := core.NewLedgerService(pool, core.NewCardCatalog(), core.NewCustomerDirectory(), rollups, log, cfg.Location)
	svc := app.NewAppService(pool, ledger, rollups, core.NewWorkerService(pool), m, log, cfg.Location)

	handler := webAdapter.NewHandler(svc, log, m, webAdapter.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		JWTSecret:          cfg.JWTSecret,
		TokenTTL:           cfg.TokenTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SecureCookies:      cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", cfg.Location.String())
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", "error", err)
		}
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "error", err)
		}
	}
}
