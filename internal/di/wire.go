package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open databases
// 2. Connect Redis and build services
// 3. Register commands, processor and scheduler
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := InitializeWork(container, cfg, log); err != nil {
		container.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize work: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}
