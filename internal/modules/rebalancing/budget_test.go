package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/rebalancer/internal/domain"
)

func buy(symbol string, qty int64, price float64) domain.RebalanceOrder {
	return newOrder(symbol, domain.ActionBuy, qty, price)
}

func symbols(orders []domain.RebalanceOrder) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Symbol)
	}
	return out
}

func TestAdmitBuys(t *testing.T) {
	tests := []struct {
		name     string
		buys     []domain.RebalanceOrder
		budget   float64
		admitted []string
		skipped  []string
	}{
		{
			name:     "everything fits",
			buys:     []domain.RebalanceOrder{buy("SPY", 5, 400), buy("QQQ", 8, 300)},
			budget:   4500,
			admitted: []string{"QQQ", "SPY"},
			skipped:  []string{},
		},
		{
			name:     "exact budget is admitted",
			buys:     []domain.RebalanceOrder{buy("SPY", 5, 400)},
			budget:   2000,
			admitted: []string{"SPY"},
			skipped:  []string{},
		},
		{
			name:     "skips and keeps going",
			buys:     []domain.RebalanceOrder{buy("B", 3, 100), buy("A", 8, 100), buy("C", 1, 150)},
			budget:   1000,
			admitted: []string{"A", "C"},
			skipped:  []string{"B"},
		},
		{
			name:     "nothing fits",
			buys:     []domain.RebalanceOrder{buy("SPY", 5, 400)},
			budget:   100,
			admitted: []string{},
			skipped:  []string{"SPY"},
		},
		{
			name:     "negative budget",
			buys:     []domain.RebalanceOrder{buy("SPY", 1, 400)},
			budget:   -50,
			admitted: []string{},
			skipped:  []string{"SPY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitted, skipped := AdmitBuys(tt.buys, tt.budget)
			assert.Equal(t, tt.admitted, symbols(admitted))
			assert.Equal(t, tt.skipped, symbols(skipped))
			if tt.budget >= 0 {
				assert.LessOrEqual(t, TotalNotional(admitted), tt.budget+1e-9)
			}
		})
	}
}

func TestTotalNotional(t *testing.T) {
	assert.InDelta(t, 4400, TotalNotional([]domain.RebalanceOrder{buy("SPY", 5, 400), buy("QQQ", 8, 300)}), 1e-9)
	assert.Equal(t, 0.0, TotalNotional(nil))
}
