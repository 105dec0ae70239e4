// Package commands implements the handlers for every queue command.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/work"
)

// Deps are the services the command handlers are built from
type Deps struct {
	Engine *rebalancing.Engine
	Host   HostStats
	Log    zerolog.Logger
}

// Register adds a handler for every known command to the registry
func Register(registry *work.Registry, deps Deps) error {
	if deps.Engine == nil {
		deps.Engine = rebalancing.NewEngine(rebalancing.DefaultSellTimeout, deps.Log)
	}
	if deps.Host == nil {
		deps.Host = SystemHost{}
	}
	log := deps.Log.With().Str("component", "commands").Logger()

	handlers := []work.Command{
		&rebalanceCommand{engine: deps.Engine, log: log},
		&printRebalanceCommand{engine: deps.Engine},
		work.CommandFunc{Command: domain.CommandPrintPositions, Fn: printPositions},
		work.CommandFunc{Command: domain.CommandPrintEquity, Fn: printEquity},
		work.CommandFunc{Command: domain.CommandPrintOrders, Fn: printOrders},
		work.CommandFunc{Command: domain.CommandCancelOrders, Fn: cancelOrders},
		&healthCommand{host: deps.Host},
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return err
		}
	}

	if missing := registry.Missing(); len(missing) > 0 {
		return fmt.Errorf("commands without handlers: %v", missing)
	}
	log.Debug().Int("count", registry.Count()).Msg("Command handlers registered")
	return nil
}

func requireBroker(caps work.Capabilities) error {
	if caps.Broker == nil {
		return fmt.Errorf("%w: no broker configured", domain.ErrNonRetryable)
	}
	return nil
}

func sources(caps work.Capabilities) rebalancing.Sources {
	return rebalancing.Sources{Allocations: caps.Allocations, Replacements: caps.Replacements}
}

// rebalanceCommand trades an account to its targets during market hours
type rebalanceCommand struct {
	engine *rebalancing.Engine
	log    zerolog.Logger
}

func (c *rebalanceCommand) Kind() domain.ExecCommand { return domain.CommandRebalance }

func (c *rebalanceCommand) Execute(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	if err := requireBroker(caps); err != nil {
		return work.Failed(err)
	}

	orderType := domain.OrderTypeMarket
	if caps.MarketHours != nil {
		if !caps.MarketHours.IsOpen() {
			next := caps.MarketHours.NextEligibleStart()
			c.log.Info().Str("account_id", req.Account.AccountID).Msg("Market closed, deferring rebalance")
			return work.Failed(domain.NewDeferredError("market closed", next))
		}
		orderType = caps.MarketHours.OrderTypeNow()
	}

	res, err := c.engine.Rebalance(ctx, req.Account, caps.Broker, sources(caps), orderType)
	if err != nil {
		out := work.Failed(err)
		if res != nil {
			out.Output = res.Report()
		}
		return out
	}

	return work.Result{
		Output: res.Report(),
		Data: map[string]interface{}{
			"order_type": string(orderType),
			"placed":     len(res.Placed),
			"skipped":    len(res.Skipped),
		},
	}
}

// printRebalanceCommand previews a rebalance without trading
type printRebalanceCommand struct {
	engine *rebalancing.Engine
}

func (c *printRebalanceCommand) Kind() domain.ExecCommand { return domain.CommandPrintRebalance }

func (c *printRebalanceCommand) Execute(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	if err := requireBroker(caps); err != nil {
		return work.Failed(err)
	}
	res, err := c.engine.DryRun(ctx, req.Account, caps.Broker, sources(caps))
	if err != nil {
		return work.Failed(err)
	}
	return work.Result{
		Output: res.Report(),
		Data:   map[string]interface{}{"orders": len(res.Orders)},
	}
}
