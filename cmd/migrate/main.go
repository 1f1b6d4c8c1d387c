package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"boxcard-ledger/internal/config"
	"boxcard-ledger/internal/db"
	"boxcard-ledger/internal/logger"
	"boxcard-ledger/migrations"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatal("connect", "error", err)
	}
	defer pool.Close()

	res, err := migrations.Apply(ctx, pool)
	if err != nil {
		log.Fatal("migrate", "error", err)
	}
	for _, f := range res.Applied {
		log.Info("applied", "file", f)
	}
	for _, f := range res.Skipped {
		log.Debug("already applied", "file", f)
	}
	log.Info("all migrations processed", "applied", len(res.Applied), "skipped", len(res.Skipped))
}
