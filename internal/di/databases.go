package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
)

// InitializeDatabases opens the allocation database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	allocationDB, err := database.New(database.Config{
		Path:    cfg.AllocationDB,
		Profile: database.ProfileStandard,
		Name:    "allocations",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize allocation database: %w", err)
	}
	if err := allocationDB.Migrate(); err != nil {
		allocationDB.Close()
		return nil, fmt.Errorf("failed to migrate allocation database: %w", err)
	}
	container.AllocationDB = allocationDB

	log.Info().Str("path", allocationDB.Path()).Msg("Allocation database ready")
	return container, nil
}
