// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/aristath/rebalancer/internal/clients/paper"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/market_hours"
	"github.com/aristath/rebalancer/internal/notify"
	"github.com/aristath/rebalancer/internal/queue"
	"github.com/aristath/rebalancer/internal/work"
)

// Container holds every long-lived dependency of the service
type Container struct {
	// Storage
	AllocationDB *database.DB // strategies, replacement sets and account defaults
	Redis        redis.UniversalClient

	// Repositories
	AllocRepo *allocation.Repository

	// Services
	Queue       *queue.Queue
	Broker      *paper.Broker
	MarketHours *market_hours.Policy
	Notifier    *notify.Async

	// Work
	Registry  *work.Registry
	Processor *work.Processor
	Scheduler *queue.Scheduler
}

// Close releases resources in reverse order of creation.
// The scheduler is stopped first so no sweep runs against a closed client.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Notifier != nil {
		if err := c.Notifier.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.AllocationDB != nil {
		if err := c.AllocationDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
