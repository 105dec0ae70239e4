package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/work"
)

func printPositions(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	if err := requireBroker(caps); err != nil {
		return work.Failed(err)
	}
	positions, err := caps.Broker.GetPositions(ctx, req.Account.AccountID)
	if err != nil {
		return work.Failed(fmt.Errorf("failed to load positions: %w", err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Positions for %s\n", req.Account.AccountID)
	if len(positions) == 0 {
		b.WriteString("No positions\n")
	}
	total := 0.0
	for _, p := range positions {
		fmt.Fprintf(&b, "  %-8s %12.4f %14.2f\n", p.Symbol, p.Shares, p.MarketValue)
		total += p.MarketValue
	}
	fmt.Fprintf(&b, "Total market value: %.2f\n", total)

	return work.Result{
		Output: b.String(),
		Data:   map[string]interface{}{"positions": len(positions), "market_value": total},
	}
}

func printEquity(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	if err := requireBroker(caps); err != nil {
		return work.Failed(err)
	}
	equity, err := caps.Broker.GetEquity(ctx, req.Account.AccountID)
	if err != nil {
		return work.Failed(fmt.Errorf("failed to load equity: %w", err))
	}
	cash, err := caps.Broker.GetCashBalance(ctx, req.Account.AccountID)
	if err != nil {
		return work.Failed(fmt.Errorf("failed to load cash: %w", err))
	}

	return work.Result{
		Output: fmt.Sprintf("Account %s\nEquity: %.2f\nCash:   %.2f\n", req.Account.AccountID, equity, cash),
		Data:   map[string]interface{}{"equity": equity, "cash": cash},
	}
}

func printOrders(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	if err := requireBroker(caps); err != nil {
		return work.Failed(err)
	}
	orders, err := caps.Broker.GetOpenOrders(ctx, req.Account.AccountID)
	if err != nil {
		return work.Failed(fmt.Errorf("failed to load open orders: %w", err))
	}
	return work.Result{
		Output: renderOrders(fmt.Sprintf("Open orders for %s", req.Account.AccountID), orders),
		Data:   map[string]interface{}{"open_orders": len(orders)},
	}
}

func cancelOrders(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	if err := requireBroker(caps); err != nil {
		return work.Failed(err)
	}
	cancelled, err := caps.Broker.CancelAllOrders(ctx, req.Account.AccountID)
	if err != nil {
		return work.Failed(fmt.Errorf("failed to cancel orders: %w", err))
	}
	return work.Result{
		Output: renderOrders(fmt.Sprintf("Cancelled %d orders for %s", len(cancelled), req.Account.AccountID), cancelled),
		Data:   map[string]interface{}{"cancelled": len(cancelled)},
	}
}

func renderOrders(title string, orders []domain.OpenOrder) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	if len(orders) == 0 {
		b.WriteString("No open orders\n")
		return b.String()
	}
	for _, o := range orders {
		fmt.Fprintf(&b, "  %-12s %-4s %6d %-8s %-4s %s\n", o.OrderID, o.Action, o.Quantity, o.Symbol, o.Type, o.Status)
	}
	return b.String()
}
