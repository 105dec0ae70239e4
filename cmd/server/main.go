// Package main is the entry point for the rebalancer service.
// It consumes account commands from the Redis queue and executes them against the broker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/di"
	"github.com/aristath/rebalancer/pkg/logger"
)

// main wires dependencies, recovers orphaned work, then runs the sweep
// scheduler and event processor until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "rebalancer",
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting rebalancer")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Orphans must be restored before any worker can dequeue
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	report, err := container.Queue.RecoverOrphans(startupCtx)
	startupCancel()
	if err != nil {
		log.Error().Err(err).Msg("Orphan recovery failed")
	} else if len(report.Recovered) > 0 || len(report.Dropped) > 0 {
		log.Warn().
			Strs("recovered", report.Recovered).
			Strs("dropped", report.Dropped).
			Msg("Recovered work left behind by a previous run")
	}

	if err := container.Scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweep scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := container.Processor.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Event processor exited with error")
		}
	}()

	log.Info().Int("workers", cfg.Workers).Msg("Rebalancer started")

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, draining in-flight events...")

	// Run returns only after in-flight events settled
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := container.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Rebalancer stopped")
}
