// Package paper provides an in-memory broker that fills orders at configured prices.
// It backs local runs without a trading gateway and doubles as the broker in tests.
package paper

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

const (
	statusSubmitted = "Submitted"
	statusCancelled = "Cancelled"
)

type account struct {
	cash      float64
	positions map[string]float64
	open      []domain.OpenOrder
}

// Broker implements domain.Broker in memory
type Broker struct {
	mu           sync.Mutex
	startingCash float64
	accounts     map[string]*account
	prices       map[string]float64
	nextID       int
	holdOrders   bool
	pollInterval time.Duration

	// failure injection
	methodErrs  map[string]error
	orderErrs   map[string]error
	validateErr error

	calls []string
	log   zerolog.Logger
}

// New creates a paper broker. Accounts are opened lazily with startingCash.
func New(startingCash float64, prices map[string]float64, log zerolog.Logger) *Broker {
	p := make(map[string]float64, len(prices))
	for k, v := range prices {
		p[k] = v
	}
	return &Broker{
		startingCash: startingCash,
		accounts:     make(map[string]*account),
		prices:       p,
		pollInterval: 10 * time.Millisecond,
		methodErrs:   make(map[string]error),
		orderErrs:    make(map[string]error),
		log:          log.With().Str("client", "paper").Logger(),
	}
}

func (b *Broker) account(id string) *account {
	acct, ok := b.accounts[id]
	if !ok {
		acct = &account{cash: b.startingCash, positions: make(map[string]float64)}
		b.accounts[id] = acct
	}
	return acct
}

func (b *Broker) record(call string) {
	b.calls = append(b.calls, call)
}

func (b *Broker) injected(method string) error {
	return b.methodErrs[method]
}

// SetCash sets an account's cash balance
func (b *Broker) SetCash(accountID string, cash float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account(accountID).cash = cash
}

// SetPosition sets an account's share count for a symbol
func (b *Broker) SetPosition(accountID, symbol string, shares float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if shares == 0 {
		delete(b.account(accountID).positions, symbol)
		return
	}
	b.account(accountID).positions[symbol] = shares
}

// SetPrice sets the fill price for a symbol
func (b *Broker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// SetError makes a method ("GetEquity", "PlaceOrder", ...) fail with err. nil clears it.
func (b *Broker) SetError(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.methodErrs, method)
		return
	}
	b.methodErrs[method] = err
}

// FailOrder makes PlaceOrder fail for one symbol
func (b *Broker) FailOrder(symbol string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderErrs[symbol] = err
}

// SetValidateError makes the what-if check reject every batch
func (b *Broker) SetValidateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validateErr = err
}

// SetHoldOrders keeps placed orders open instead of filling them
func (b *Broker) SetHoldOrders(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdOrders = hold
}

// Calls returns the recorded call log, e.g. "cancel", "place SELL QQQ 3", "await", "cash"
func (b *Broker) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Shares returns an account's share count for a symbol
func (b *Broker) Shares(accountID, symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(accountID).positions[symbol]
}

// Cash returns an account's cash balance
func (b *Broker) Cash(accountID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(accountID).cash
}

// GetEquity returns cash plus the market value of every position
func (b *Broker) GetEquity(_ context.Context, accountID string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("equity")
	if err := b.injected("GetEquity"); err != nil {
		return 0, err
	}
	acct := b.account(accountID)
	equity := acct.cash
	for symbol, shares := range acct.positions {
		equity += shares * b.prices[symbol]
	}
	return equity, nil
}

// GetCashBalance returns the account's cash
func (b *Broker) GetCashBalance(_ context.Context, accountID string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("cash")
	if err := b.injected("GetCashBalance"); err != nil {
		return 0, err
	}
	return b.account(accountID).cash, nil
}

// GetPositions returns positions sorted by symbol
func (b *Broker) GetPositions(_ context.Context, accountID string) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("positions")
	if err := b.injected("GetPositions"); err != nil {
		return nil, err
	}
	acct := b.account(accountID)
	out := make([]domain.Position, 0, len(acct.positions))
	for symbol, shares := range acct.positions {
		out = append(out, domain.Position{
			Symbol:      symbol,
			Shares:      shares,
			MarketValue: shares * b.prices[symbol],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetPrices returns known prices; unknown symbols are left out of the map
func (b *Broker) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("prices")
	if err := b.injected("GetPrices"); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := b.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

// ValidateOrders performs the what-if check for a whole batch
func (b *Broker) ValidateOrders(_ context.Context, accountID string, orders []domain.RebalanceOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("validate")
	if err := b.injected("ValidateOrders"); err != nil {
		return err
	}
	if b.validateErr != nil {
		return b.validateErr
	}
	acct := b.account(accountID)
	for _, o := range orders {
		if o.Quantity <= 0 {
			return fmt.Errorf("order for %s has non-positive quantity %d", o.Symbol, o.Quantity)
		}
		if _, ok := b.prices[o.Symbol]; !ok {
			return fmt.Errorf("no contract found for %s", o.Symbol)
		}
		if o.Action == domain.ActionSell && float64(o.Quantity) > acct.positions[o.Symbol]+1e-9 {
			return fmt.Errorf("sell %s %d exceeds held %.4f shares", o.Symbol, o.Quantity, acct.positions[o.Symbol])
		}
	}
	return nil
}

// PlaceOrder fills immediately at the configured price unless orders are held
func (b *Broker) PlaceOrder(_ context.Context, accountID, symbol string, signedQty int64, orderType domain.OrderType) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	action := domain.ActionBuy
	if signedQty < 0 {
		action = domain.ActionSell
	}
	qty := signedQty
	if qty < 0 {
		qty = -qty
	}
	b.record(fmt.Sprintf("place %s %s %d", action, symbol, qty))

	if err := b.injected("PlaceOrder"); err != nil {
		return "", err
	}
	if err := b.orderErrs[symbol]; err != nil {
		return "", err
	}
	if qty == 0 {
		return "", fmt.Errorf("order for %s has zero quantity", symbol)
	}
	price, ok := b.prices[symbol]
	if !ok || price <= 0 {
		return "", fmt.Errorf("no price for %s", symbol)
	}

	acct := b.account(accountID)
	notional := float64(qty) * price
	if action == domain.ActionBuy && notional > acct.cash+1e-9 {
		return "", fmt.Errorf("order rejected - insufficient funds: need %.2f, have %.2f", notional, acct.cash)
	}
	if action == domain.ActionSell && float64(qty) > acct.positions[symbol]+1e-9 {
		return "", fmt.Errorf("order rejected - cannot sell %d %s, holding %.4f", qty, symbol, acct.positions[symbol])
	}

	b.nextID++
	id := fmt.Sprintf("paper-%d", b.nextID)

	if b.holdOrders {
		acct.open = append(acct.open, domain.OpenOrder{
			OrderID:  id,
			Symbol:   symbol,
			Action:   action,
			Quantity: qty,
			Type:     orderType,
			Status:   statusSubmitted,
		})
	} else {
		b.fill(acct, symbol, signedQty, price)
	}

	b.log.Info().
		Str("account_id", accountID).
		Str("order_id", id).
		Str("symbol", symbol).
		Str("action", string(action)).
		Int64("quantity", qty).
		Str("type", string(orderType)).
		Float64("price", price).
		Msg("Paper order placed")
	return id, nil
}

func (b *Broker) fill(acct *account, symbol string, signedQty int64, price float64) {
	acct.cash -= float64(signedQty) * price
	shares := acct.positions[symbol] + float64(signedQty)
	if math.Abs(shares) < 1e-9 {
		delete(acct.positions, symbol)
		return
	}
	acct.positions[symbol] = shares
}

// FillOpenOrders fills every held order for an account at current prices
func (b *Broker) FillOpenOrders(accountID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account(accountID)
	for _, o := range acct.open {
		signed := o.Quantity
		if o.Action == domain.ActionSell {
			signed = -signed
		}
		b.fill(acct, o.Symbol, signed, b.prices[o.Symbol])
	}
	acct.open = nil
}

// GetOpenOrders returns orders that have not filled yet
func (b *Broker) GetOpenOrders(_ context.Context, accountID string) ([]domain.OpenOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("open_orders")
	if err := b.injected("GetOpenOrders"); err != nil {
		return nil, err
	}
	return append([]domain.OpenOrder(nil), b.account(accountID).open...), nil
}

// CancelAllOrders cancels and returns every open order
func (b *Broker) CancelAllOrders(_ context.Context, accountID string) ([]domain.OpenOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("cancel")
	if err := b.injected("CancelAllOrders"); err != nil {
		return nil, err
	}
	acct := b.account(accountID)
	cancelled := make([]domain.OpenOrder, 0, len(acct.open))
	for _, o := range acct.open {
		o.Status = statusCancelled
		cancelled = append(cancelled, o)
	}
	acct.open = nil
	return cancelled, nil
}

// AwaitNoOpenOrders polls until the account has no open orders or the timeout passes
func (b *Broker) AwaitNoOpenOrders(ctx context.Context, accountID string, timeout time.Duration) error {
	b.mu.Lock()
	b.record("await")
	err := b.injected("AwaitNoOpenOrders")
	b.mu.Unlock()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		open := len(b.account(accountID).open)
		b.mu.Unlock()
		if open == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d orders open after %s", domain.ErrOrdersStillOpen, open, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}
