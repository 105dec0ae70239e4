package rebalancing

import (
	"fmt"
	"strings"

	"github.com/aristath/rebalancer/internal/domain"
)

// Result is the bookkeeping of one rebalance run
type Result struct {
	AccountID      string                  `json:"account_id"`
	Strategy       string                  `json:"strategy"`
	ReplacementSet string                  `json:"replacement_set,omitempty"`
	DryRun         bool                    `json:"dry_run"`
	OrderType      domain.OrderType        `json:"order_type,omitempty"`
	Allocations    []domain.Allocation     `json:"allocations"`
	Orders         []domain.RebalanceOrder `json:"orders"`
	Placed         []domain.PlacedOrder    `json:"placed"`
	Skipped        []domain.RebalanceOrder `json:"skipped"`
	Cancelled      []domain.OpenOrder      `json:"cancelled"`

	Equity         float64 `json:"equity"`
	ReservePercent float64 `json:"reserve_percent"`
	ReserveAmount  float64 `json:"reserve_amount"`
	Investable     float64 `json:"investable"`
	Cash           float64 `json:"cash"`
	BuyBudget      float64 `json:"buy_budget"`
}

// Admitted returns the orders that were (or, in a dry run, would be) placed
func (r *Result) Admitted() []domain.RebalanceOrder {
	skipped := make(map[string]bool, len(r.Skipped))
	for _, o := range r.Skipped {
		skipped[o.Symbol] = true
	}
	var out []domain.RebalanceOrder
	for _, o := range r.Orders {
		if o.Action == domain.ActionBuy && skipped[o.Symbol] {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Report renders a plain-text summary of the run
func (r *Result) Report() string {
	var b strings.Builder

	title := "Rebalance"
	if r.DryRun {
		title = "Rebalance preview"
	}
	fmt.Fprintf(&b, "%s for %s (strategy %s", title, r.AccountID, r.Strategy)
	if r.ReplacementSet != "" {
		fmt.Fprintf(&b, ", replacements %s", r.ReplacementSet)
	}
	b.WriteString(")\n")

	fmt.Fprintf(&b, "Equity:      %12.2f\n", r.Equity)
	fmt.Fprintf(&b, "Reserve:     %12.2f (%.2f%%)\n", r.ReserveAmount, r.ReservePercent)
	fmt.Fprintf(&b, "Investable:  %12.2f\n", r.Investable)
	fmt.Fprintf(&b, "Cash:        %12.2f\n", r.Cash)
	fmt.Fprintf(&b, "Buy budget:  %12.2f\n", r.BuyBudget)

	if len(r.Allocations) > 0 {
		b.WriteString("Targets:\n")
		for _, a := range r.Allocations {
			fmt.Fprintf(&b, "  %-8s %7.3f%%\n", a.Symbol, a.Fraction*100)
		}
	}

	if len(r.Cancelled) > 0 {
		fmt.Fprintf(&b, "Cancelled %d open orders\n", len(r.Cancelled))
	}

	if len(r.Orders) == 0 {
		b.WriteString("No orders needed\n")
		return b.String()
	}

	b.WriteString("Orders:\n")
	placed := make(map[string]string, len(r.Placed))
	for _, p := range r.Placed {
		placed[p.Symbol] = p.OrderID
	}
	skipped := make(map[string]bool, len(r.Skipped))
	for _, o := range r.Skipped {
		skipped[o.Symbol] = true
	}
	for _, o := range r.Orders {
		status := ""
		switch {
		case o.Action == domain.ActionBuy && skipped[o.Symbol]:
			status = "skipped (budget)"
		case placed[o.Symbol] != "":
			status = "placed " + placed[o.Symbol]
		case r.DryRun:
			status = "would place"
		}
		fmt.Fprintf(&b, "  %-4s %6d %-8s @ %10.2f = %12.2f  %s\n",
			o.Action, o.Quantity, o.Symbol, o.Price, o.MarketValue, status)
	}
	return b.String()
}
