// Package main is the entry point for the wagering platform core.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"casino-core/internal/config"
	"casino-core/internal/dispatch"
	"casino-core/internal/ledger"
	"casino-core/internal/monitoring"
	"casino-core/internal/persist"
	"casino-core/internal/pkg/db"
	"casino-core/internal/platform"
	"casino-core/internal/server"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the persistence substrate
	var persister persist.Persister
	if cfg.Platform.Persistence {
		dbPool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		store := persist.NewPostgres(dbPool.Pool)
		if err := store.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		persister = store
	} else {
		log.Warn().Msg("Persistence disabled, state is in-memory only")
		persister = persist.NewMemory()
	}

	metrics := monitoring.New()

	core := platform.New(platform.Config{
		Owner:               cfg.Platform.Owner(),
		NFTProgram:          cfg.Platform.NFTProgram(),
		OperatingAccount:    cfg.Platform.Operating(),
		OperatingCollateral: cfg.Platform.OperatingCollateral,
		CostModel:           ledger.JSONCostModel{PerByte: cfg.Platform.StorageCostPerByte},
		Dispatcher:          dispatch.NewAsync(dispatch.LogSender{}, nil),
		Persister:           persister,
		WagerRecorder:       metrics,
		TransferRecorder:    metrics,
	})
	if err := core.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore platform state")
	}

	srv := server.New(cfg.Server, core, metrics.Handler())

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}
