package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"boxcard-ledger/internal/adapters/cli"
	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/config"
	"boxcard-ledger/internal/core"
	"boxcard-ledger/internal/db"
	"boxcard-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatal("database", "error", err)
	}
	defer pool.Close()

	rollups := core.NewRollupAggregator(pool)
	ledger := core.NewLedgerService(pool, core.NewCardCatalog(), core.NewCustomerDirectory(), rollups, log, cfg.Location)
	svc := app.NewAppService(pool, ledger, rollups, core.NewWorkerService(pool), nil, log, cfg.Location)

	if err := cli.Run(ctx, svc, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		switch {
		case errors.Is(err, cli.ErrUsage):
			os.Exit(2)
		case errors.Is(err, cli.ErrInconsistent):
			os.Exit(3)
		}
		os.Exit(1)
	}
}
