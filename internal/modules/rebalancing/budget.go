package rebalancing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// AdmitBuys picks the BUY orders that fit in budget.
// Orders are considered largest notional first; each one is admitted when the
// running total plus its value stays within budget, otherwise it is skipped.
// Admitted orders are never revisited to make room for others.
func AdmitBuys(buys []domain.RebalanceOrder, budget float64) (admitted, skipped []domain.RebalanceOrder) {
	sorted := make([]domain.RebalanceOrder, len(buys))
	copy(sorted, buys)
	sort.SliceStable(sorted, func(i, j int) bool {
		vi, vj := notional(sorted[i]), notional(sorted[j])
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	limit := decimal.NewFromFloat(budget)
	total := decimal.Zero
	for _, o := range sorted {
		next := total.Add(notional(o))
		if next.LessThanOrEqual(limit) {
			admitted = append(admitted, o)
			total = next
			continue
		}
		skipped = append(skipped, o)
	}
	return admitted, skipped
}

// TotalNotional sums quantity × price over orders
func TotalNotional(orders []domain.RebalanceOrder) float64 {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(notional(o))
	}
	f, _ := total.Float64()
	return f
}

func notional(o domain.RebalanceOrder) decimal.Decimal {
	return decimal.NewFromFloat(o.Price).Mul(decimal.NewFromInt(o.Quantity))
}
