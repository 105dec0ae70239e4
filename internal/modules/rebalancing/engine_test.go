package rebalancing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/clients/paper"
	"github.com/aristath/rebalancer/internal/domain"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

const acctID = "U1"

type fixture struct {
	broker       *paper.Broker
	allocations  *testingpkg.MockAllocationSource
	replacements *testingpkg.MockReplacementSource
	engine       *Engine
}

// newFixture builds the reference account: cash 4500, SPY 10 @ 400, QQQ 5 @ 300
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		broker:       paper.New(0, map[string]float64{"SPY": 400, "QQQ": 300, "VOO": 200}, zerolog.Nop()),
		allocations:  testingpkg.NewMockAllocationSource(),
		replacements: testingpkg.NewMockReplacementSource(),
		engine:       NewEngine(time.Second, zerolog.Nop()),
	}
	f.broker.SetCash(acctID, 4500)
	f.broker.SetPosition(acctID, "SPY", 10)
	f.broker.SetPosition(acctID, "QQQ", 5)
	f.allocations.SetAllocations("core", []domain.Allocation{
		{Symbol: "SPY", Fraction: 0.6},
		{Symbol: "QQQ", Fraction: 0.4},
	})
	return f
}

func (f *fixture) sources() Sources {
	return Sources{Allocations: f.allocations, Replacements: f.replacements}
}

func account(strategy string, reserve float64) domain.AccountContext {
	return domain.AccountContext{AccountID: acctID, StrategyName: strategy, CashReservePercent: reserve}
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}

func TestRebalance_BuysTowardTargets(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Rebalance(context.Background(), account("core", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.NoError(t, err)

	assert.InDelta(t, 10000, res.Equity, 1e-9)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, domain.ActionBuy, res.Orders[0].Action)
	assert.Equal(t, "QQQ", res.Orders[0].Symbol)
	assert.Equal(t, int64(8), res.Orders[0].Quantity)
	assert.Equal(t, "SPY", res.Orders[1].Symbol)
	assert.Equal(t, int64(5), res.Orders[1].Quantity)

	assert.Len(t, res.Placed, 2)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 15.0, f.broker.Shares(acctID, "SPY"))
	assert.Equal(t, 13.0, f.broker.Shares(acctID, "QQQ"))
	assert.InDelta(t, 100, f.broker.Cash(acctID), 1e-9)
}

func TestRebalance_NoOrdersWithinThreshold(t *testing.T) {
	f := newFixture(t)
	f.broker.SetCash(acctID, 100)
	f.broker.SetPosition(acctID, "SPY", 15)
	f.broker.SetPosition(acctID, "QQQ", 13)

	res, err := f.engine.Rebalance(context.Background(), account("core", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.NoError(t, err)

	assert.Empty(t, res.Orders)
	assert.Equal(t, -1, indexOf(f.broker.Calls(), "validate"))
	assert.Equal(t, -1, indexOf(f.broker.Calls(), "cancel"))
}

func TestRebalance_SellsSettleBeforeBuys(t *testing.T) {
	f := newFixture(t)
	f.allocations.SetAllocations("spy-only", []domain.Allocation{{Symbol: "SPY", Fraction: 1}})

	res, err := f.engine.Rebalance(context.Background(), account("spy-only", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.NoError(t, err)
	require.Len(t, res.Placed, 2)

	calls := f.broker.Calls()
	validate := indexOf(calls, "validate")
	cancel := indexOf(calls, "cancel")
	sell := indexOf(calls, "place SELL QQQ 5")
	await := indexOf(calls, "await")
	buy := indexOf(calls, "place BUY SPY 15")

	require.NotEqual(t, -1, sell)
	require.NotEqual(t, -1, buy)
	assert.Less(t, validate, cancel)
	assert.Less(t, cancel, sell)
	assert.Less(t, sell, await)
	assert.Less(t, await, buy)

	assert.Equal(t, 0.0, f.broker.Shares(acctID, "QQQ"))
	assert.Equal(t, 25.0, f.broker.Shares(acctID, "SPY"))
}

func TestRebalance_RespectsBuyBudget(t *testing.T) {
	f := newFixture(t)

	// 20% reserve: buy budget is 4500 - 2000 = 2500, QQQ 6 (1800) fits, SPY 2 (800) does not
	res, err := f.engine.Rebalance(context.Background(), account("core", 20), f.broker, f.sources(), domain.OrderTypeMarket)
	require.NoError(t, err)

	assert.InDelta(t, 2000, res.ReserveAmount, 1e-9)
	assert.InDelta(t, 2500, res.BuyBudget, 1e-9)
	require.Len(t, res.Placed, 1)
	assert.Equal(t, "QQQ", res.Placed[0].Symbol)
	assert.Equal(t, int64(6), res.Placed[0].Quantity)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "SPY", res.Skipped[0].Symbol)
	assert.Equal(t, 10.0, f.broker.Shares(acctID, "SPY"))
}

func TestRebalance_ValidationFailurePlacesNothing(t *testing.T) {
	f := newFixture(t)
	f.broker.SetValidateError(errors.New("what-if rejected: margin"))

	res, err := f.engine.Rebalance(context.Background(), account("core", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.NotErrorIs(t, err, domain.ErrPartialExecution)

	for _, c := range f.broker.Calls() {
		assert.NotContains(t, c, "place")
	}
	assert.Equal(t, -1, indexOf(f.broker.Calls(), "cancel"))
}

func TestRebalance_SellTimeoutAbortsBuys(t *testing.T) {
	f := newFixture(t)
	f.engine = NewEngine(30*time.Millisecond, zerolog.Nop())
	f.broker.SetHoldOrders(true)
	f.allocations.SetAllocations("spy-only", []domain.Allocation{{Symbol: "SPY", Fraction: 1}})

	res, err := f.engine.Rebalance(context.Background(), account("spy-only", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialExecution)
	assert.ErrorIs(t, err, domain.ErrOrdersStillOpen)

	require.NotNil(t, res)
	require.Len(t, res.Placed, 1)
	assert.Equal(t, domain.ActionSell, res.Placed[0].Action)
	assert.Equal(t, -1, indexOf(f.broker.Calls(), "place BUY SPY 15"))
}

func TestRebalance_BuyFailureAfterSellIsPartial(t *testing.T) {
	f := newFixture(t)
	f.allocations.SetAllocations("spy-only", []domain.Allocation{{Symbol: "SPY", Fraction: 1}})
	f.broker.FailOrder("SPY", errors.New("exchange halted"))

	res, err := f.engine.Rebalance(context.Background(), account("spy-only", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialExecution)
	assert.Contains(t, err.Error(), "exchange halted")
	require.Len(t, res.Placed, 1)
}

func TestRebalance_FirstOrderFailureIsNotPartial(t *testing.T) {
	f := newFixture(t)
	f.broker.FailOrder("QQQ", errors.New("exchange halted"))

	res, err := f.engine.Rebalance(context.Background(), account("core", 0), f.broker, f.sources(), domain.OrderTypeMarket)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPartialExecution)
	assert.Empty(t, res.Placed)
}

func TestRebalance_PlanFailures(t *testing.T) {
	t.Run("empty strategy", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Rebalance(context.Background(), account("missing", 0), f.broker, f.sources(), domain.OrderTypeMarket)
		assert.ErrorIs(t, err, domain.ErrNonRetryable)
	})

	t.Run("unknown replacement set", func(t *testing.T) {
		f := newFixture(t)
		acct := account("core", 0)
		acct.ReplacementSet = "nope"
		_, err := f.engine.Rebalance(context.Background(), acct, f.broker, f.sources(), domain.OrderTypeMarket)
		assert.ErrorIs(t, err, domain.ErrNonRetryable)
		assert.ErrorIs(t, err, domain.ErrReplacementSetNotFound)
	})

	t.Run("missing price", func(t *testing.T) {
		f := newFixture(t)
		f.allocations.SetAllocations("core", []domain.Allocation{{Symbol: "ZZZ", Fraction: 1}})
		_, err := f.engine.Rebalance(context.Background(), account("core", 0), f.broker, f.sources(), domain.OrderTypeMarket)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no usable price for ZZZ")
	})

	t.Run("broker down", func(t *testing.T) {
		f := newFixture(t)
		f.broker.SetError("GetPositions", errors.New("connection refused"))
		_, err := f.engine.Rebalance(context.Background(), account("core", 0), f.broker, f.sources(), domain.OrderTypeMarket)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestRebalance_AppliesReplacementSet(t *testing.T) {
	f := newFixture(t)
	f.replacements.SetReplacementSet(domain.ReplacementSet{
		Name:  "cheap",
		Rules: []domain.ReplacementRule{{Source: "SPY", Target: "VOO", Scale: 1}},
	})
	acct := account("core", 0)
	acct.ReplacementSet = "cheap"

	res, err := f.engine.DryRun(context.Background(), acct, f.broker, f.sources())
	require.NoError(t, err)

	symbols := make([]string, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		symbols = append(symbols, a.Symbol)
	}
	assert.Equal(t, []string{"QQQ", "VOO"}, symbols)

	// SPY is no longer a target and is liquidated
	require.NotEmpty(t, res.Orders)
	assert.Equal(t, domain.ActionSell, res.Orders[0].Action)
	assert.Equal(t, "SPY", res.Orders[0].Symbol)
	assert.Equal(t, int64(10), res.Orders[0].Quantity)
}

func TestDryRun_DoesNotTouchAccount(t *testing.T) {
	f := newFixture(t)
	f.allocations.SetAllocations("spy-only", []domain.Allocation{{Symbol: "SPY", Fraction: 1}})

	res, err := f.engine.DryRun(context.Background(), account("spy-only", 0), f.broker, f.sources())
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.InDelta(t, 6000, res.Cash, 1e-9)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Placed)
	assert.Len(t, res.Admitted(), 2)

	for _, c := range f.broker.Calls() {
		assert.NotContains(t, c, "place")
		assert.NotEqual(t, "cancel", c)
	}
	assert.Equal(t, 5.0, f.broker.Shares(acctID, "QQQ"))
	assert.Contains(t, res.Report(), "Rebalance preview")
}
