package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/commands"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/queue"
	"github.com/aristath/rebalancer/internal/work"
)

// InitializeWork registers command handlers and builds the processor and sweep scheduler.
// Nothing is started here.
func InitializeWork(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Registry = work.NewRegistry()
	if err := commands.Register(container.Registry, commands.Deps{
		Engine: rebalancing.NewEngine(cfg.SellConfirmTimeout, log),
		Log:    log,
	}); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	caps := work.Capabilities{
		Broker:       container.Broker,
		Allocations:  container.AllocRepo,
		Replacements: container.AllocRepo,
		Notifier:     container.Notifier,
		MarketHours:  container.MarketHours,
		Queue:        container.Queue,
		Store:        container.AllocationDB,
	}
	container.Processor = work.NewProcessor(container.Queue, container.Registry, caps, work.Config{
		Workers:        cfg.Workers,
		DequeueTimeout: cfg.DequeueTimeout,
		MaxAttempts:    cfg.MaxAttempts,
	}, log)

	container.Scheduler = queue.NewScheduler(container.Queue, cfg.RetrySweepInterval, cfg.DelayedSweepInterval)
	container.Scheduler.SetLogger(log)

	log.Info().Int("commands", container.Registry.Count()).Msg("Work processor registered")
	return nil
}
