// Package rebalancing turns target allocations into broker orders and executes
// them sell-first, buy-second.
package rebalancing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/utils"
)

// DefaultSellTimeout is how long sells may stay open before buys are abandoned
const DefaultSellTimeout = 60 * time.Second

// Sources are the collaborators that describe what the portfolio should look like
type Sources struct {
	Allocations  domain.AllocationSource
	Replacements domain.ReplacementSource
}

// Engine calculates and executes rebalances
type Engine struct {
	sellTimeout time.Duration
	threshold   float64
	log         zerolog.Logger
}

// NewEngine creates a rebalance engine
func NewEngine(sellTimeout time.Duration, log zerolog.Logger) *Engine {
	if sellTimeout <= 0 {
		sellTimeout = DefaultSellTimeout
	}
	return &Engine{
		sellTimeout: sellTimeout,
		threshold:   DefaultThreshold,
		log:         log.With().Str("service", "rebalancing").Logger(),
	}
}

// Rebalance brings an account to its target allocation.
//
// Orders are validated as a batch before anything is sent. Existing open orders
// are cancelled, SELLs are placed and must settle within the sell timeout, and
// only then are BUYs admitted against the post-sell cash. Any failure after the
// first order went out is reported as a partial execution.
func (e *Engine) Rebalance(ctx context.Context, acct domain.AccountContext, broker domain.Broker, src Sources, orderType domain.OrderType) (*Result, error) {
	defer utils.OperationTimer("rebalance", e.log)()

	res, err := e.plan(ctx, acct, broker, src)
	if err != nil {
		return nil, err
	}
	res.OrderType = orderType

	log := e.log.With().Str("account_id", acct.AccountID).Str("strategy", acct.StrategyName).Logger()

	if len(res.Orders) == 0 {
		log.Info().Msg("Portfolio already at target, nothing to do")
		return res, nil
	}

	if err := broker.ValidateOrders(ctx, acct.AccountID, res.Orders); err != nil {
		return nil, fmt.Errorf("pre-flight validation rejected the batch: %w", err)
	}

	cancelled, err := broker.CancelAllOrders(ctx, acct.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel open orders: %w", err)
	}
	res.Cancelled = cancelled
	if len(cancelled) > 0 {
		log.Info().Int("count", len(cancelled)).Msg("Cancelled pre-existing open orders")
	}

	sells, buys := SplitOrders(res.Orders)

	for _, o := range sells {
		if err := e.place(ctx, broker, acct.AccountID, o, orderType, res); err != nil {
			return res, partial(res, err)
		}
	}

	if len(res.Placed) > 0 {
		if err := broker.AwaitNoOpenOrders(ctx, acct.AccountID, e.sellTimeout); err != nil {
			return res, fmt.Errorf("%w: sell orders did not complete within %s: %w",
				domain.ErrPartialExecution, e.sellTimeout, err)
		}
	}

	cash, err := broker.GetCashBalance(ctx, acct.AccountID)
	if err != nil {
		return res, partial(res, fmt.Errorf("failed to read post-sell cash: %w", err))
	}
	res.Cash = cash
	res.BuyBudget = cash - res.ReserveAmount

	admitted, skipped := AdmitBuys(buys, res.BuyBudget)
	res.Skipped = skipped
	if len(skipped) > 0 {
		log.Warn().
			Int("skipped", len(skipped)).
			Float64("budget", res.BuyBudget).
			Msg("Buy orders skipped, budget exhausted")
	}

	for _, o := range admitted {
		if err := e.place(ctx, broker, acct.AccountID, o, orderType, res); err != nil {
			return res, partial(res, err)
		}
	}

	log.Info().
		Int("placed", len(res.Placed)).
		Int("skipped", len(res.Skipped)).
		Float64("equity", res.Equity).
		Msg("Rebalance complete")
	return res, nil
}

// DryRun computes the same orders as Rebalance and simulates execution without
// touching the account. Cash after sells is estimated from sell notional.
func (e *Engine) DryRun(ctx context.Context, acct domain.AccountContext, broker domain.Broker, src Sources) (*Result, error) {
	res, err := e.plan(ctx, acct, broker, src)
	if err != nil {
		return nil, err
	}
	res.DryRun = true

	if len(res.Orders) > 0 {
		if err := broker.ValidateOrders(ctx, acct.AccountID, res.Orders); err != nil {
			return nil, fmt.Errorf("pre-flight validation rejected the batch: %w", err)
		}
	}

	cash, err := broker.GetCashBalance(ctx, acct.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cash: %w", err)
	}
	sells, buys := SplitOrders(res.Orders)
	res.Cash = cash + TotalNotional(sells)
	res.BuyBudget = res.Cash - res.ReserveAmount
	_, res.Skipped = AdmitBuys(buys, res.BuyBudget)

	return res, nil
}

// plan fetches targets, applies replacements and computes orders
func (e *Engine) plan(ctx context.Context, acct domain.AccountContext, broker domain.Broker, src Sources) (*Result, error) {
	if src.Allocations == nil {
		return nil, fmt.Errorf("%w: no allocation source configured", domain.ErrNonRetryable)
	}

	allocations, err := src.Allocations.GetAllocations(ctx, acct.StrategyName)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations for %s: %w", acct.StrategyName, err)
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: strategy %q has no allocations", domain.ErrNonRetryable, acct.StrategyName)
	}

	if acct.ReplacementSet != "" {
		set, err := e.replacementSet(ctx, src.Replacements, acct.ReplacementSet)
		if err != nil {
			return nil, err
		}
		allocations, err = ApplyReplacements(allocations, set)
		if err != nil {
			return nil, err
		}
	} else {
		allocations = consolidate(allocations)
	}

	positions, err := broker.GetPositions(ctx, acct.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	equity, err := broker.GetEquity(ctx, acct.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load equity: %w", err)
	}

	reserve := equity * acct.ReserveFraction()
	investable := equity - reserve

	symbols := unionSymbols(allocations, positions)
	prices, err := broker.GetPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	orders, err := CalculateOrders(allocations, positions, investable, prices, e.threshold)
	if err != nil {
		return nil, err
	}

	return &Result{
		AccountID:      acct.AccountID,
		Strategy:       acct.StrategyName,
		ReplacementSet: acct.ReplacementSet,
		Allocations:    allocations,
		Orders:         orders,
		Equity:         equity,
		ReservePercent: acct.CashReservePercent,
		ReserveAmount:  reserve,
		Investable:     investable,
	}, nil
}

func (e *Engine) replacementSet(ctx context.Context, src domain.ReplacementSource, name string) (domain.ReplacementSet, error) {
	if src == nil {
		return domain.ReplacementSet{}, fmt.Errorf("%w: replacement set %q requested but no source configured", domain.ErrNonRetryable, name)
	}
	set, err := src.ReplacementSet(ctx, name)
	if errors.Is(err, domain.ErrReplacementSetNotFound) {
		return domain.ReplacementSet{}, fmt.Errorf("%w: replacement set %q: %w", domain.ErrNonRetryable, name, err)
	}
	if err != nil {
		return domain.ReplacementSet{}, fmt.Errorf("failed to load replacement set %q: %w", name, err)
	}
	return set, nil
}

func (e *Engine) place(ctx context.Context, broker domain.Broker, accountID string, o domain.RebalanceOrder, orderType domain.OrderType, res *Result) error {
	id, err := broker.PlaceOrder(ctx, accountID, o.Symbol, o.SignedQuantity(), orderType)
	if err != nil {
		return fmt.Errorf("%s %d %s: %w", o.Action, o.Quantity, o.Symbol, err)
	}
	res.Placed = append(res.Placed, domain.PlacedOrder{RebalanceOrder: o, OrderID: id})
	e.log.Info().
		Str("account_id", accountID).
		Str("order_id", id).
		Str("symbol", o.Symbol).
		Str("action", string(o.Action)).
		Int64("quantity", o.Quantity).
		Msg("Order placed")
	return nil
}

// partial marks err as a partial execution when orders already went out
func partial(res *Result, err error) error {
	if len(res.Placed) == 0 {
		return err
	}
	return fmt.Errorf("%w after %d orders placed: %w", domain.ErrPartialExecution, len(res.Placed), err)
}

func unionSymbols(allocations []domain.Allocation, positions []domain.Position) []string {
	seen := make(map[string]bool, len(allocations)+len(positions))
	var symbols []string
	for _, a := range allocations {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			symbols = append(symbols, a.Symbol)
		}
	}
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}
