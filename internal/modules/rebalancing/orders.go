package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/rebalancer/internal/domain"
)

// DefaultThreshold is the share difference at or below which no order is emitted
const DefaultThreshold = 0.5

// CalculateOrders turns target allocations into share orders.
//
// For every target symbol the share difference is target_value/price − held;
// an order for round(|diff|) shares is emitted only when |diff| > threshold.
// Held symbols missing from the targets are sold in full. Every symbol involved
// must have a positive price. SELLs come first, then orders are sorted by symbol.
func CalculateOrders(
	targets []domain.Allocation,
	positions []domain.Position,
	investable float64,
	prices map[string]float64,
	threshold float64,
) ([]domain.RebalanceOrder, error) {
	held := make(map[string]float64, len(positions))
	for _, p := range positions {
		held[p.Symbol] += p.Shares
	}

	var orders []domain.RebalanceOrder
	inTarget := make(map[string]bool, len(targets))

	for _, t := range targets {
		inTarget[t.Symbol] = true
		price, err := requirePrice(prices, t.Symbol)
		if err != nil {
			return nil, err
		}

		targetShares := investable * t.Fraction / price
		diff := targetShares - held[t.Symbol]
		if math.Abs(diff) <= threshold {
			continue
		}

		action := domain.ActionBuy
		if diff < 0 {
			action = domain.ActionSell
		}
		orders = append(orders, newOrder(t.Symbol, action, int64(math.Round(math.Abs(diff))), price))
	}

	for symbol, shares := range held {
		if inTarget[symbol] || shares <= 0 {
			continue
		}
		qty := int64(math.Round(shares))
		if qty < 1 {
			continue
		}
		price, err := requirePrice(prices, symbol)
		if err != nil {
			return nil, err
		}
		orders = append(orders, newOrder(symbol, domain.ActionSell, qty, price))
	}

	SortOrders(orders)
	return orders, nil
}

// SortOrders puts SELLs before BUYs, then orders by symbol
func SortOrders(orders []domain.RebalanceOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Action != orders[j].Action {
			return orders[i].Action == domain.ActionSell
		}
		return orders[i].Symbol < orders[j].Symbol
	})
}

// SplitOrders separates SELLs from BUYs, preserving order
func SplitOrders(orders []domain.RebalanceOrder) (sells, buys []domain.RebalanceOrder) {
	for _, o := range orders {
		if o.Action == domain.ActionSell {
			sells = append(sells, o)
		} else {
			buys = append(buys, o)
		}
	}
	return sells, buys
}

func newOrder(symbol string, action domain.OrderAction, qty int64, price float64) domain.RebalanceOrder {
	return domain.RebalanceOrder{
		Symbol:      symbol,
		Action:      action,
		Quantity:    qty,
		Price:       price,
		MarketValue: float64(qty) * price,
	}
}

func requirePrice(prices map[string]float64, symbol string) (float64, error) {
	price, ok := prices[symbol]
	if !ok || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("no usable price for %s", symbol)
	}
	return price, nil
}
