package rebalancing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aristath/rebalancer/internal/domain"
)

func bySymbol(allocations []domain.Allocation) map[string]float64 {
	out := make(map[string]float64, len(allocations))
	for _, a := range allocations {
		out[a.Symbol] = a.Fraction
	}
	return out
}

func replacementSet(rules ...domain.ReplacementRule) domain.ReplacementSet {
	return domain.ReplacementSet{Name: "test", Rules: rules}
}

func TestApplyReplacements(t *testing.T) {
	base := []domain.Allocation{{Symbol: "SPY", Fraction: 0.6}, {Symbol: "QQQ", Fraction: 0.4}}

	t.Run("one to one swap", func(t *testing.T) {
		out, err := ApplyReplacements(base, replacementSet(domain.ReplacementRule{Source: "SPY", Target: "VOO", Scale: 1}))
		require.NoError(t, err)
		got := bySymbol(out)
		assert.Len(t, got, 2)
		assert.InDelta(t, 0.6, got["VOO"], 1e-12)
		assert.InDelta(t, 0.4, got["QQQ"], 1e-12)
	})

	t.Run("excess absorbed by the rest", func(t *testing.T) {
		out, err := ApplyReplacements(base, replacementSet(domain.ReplacementRule{Source: "SPY", Target: "UPRO", Scale: 1.5}))
		require.NoError(t, err)
		got := bySymbol(out)
		assert.InDelta(t, 0.9, got["UPRO"], 1e-12)
		assert.InDelta(t, 0.1, got["QQQ"], 1e-12)
	})

	t.Run("excess beyond the rest clamps and renormalizes", func(t *testing.T) {
		out, err := ApplyReplacements(base, replacementSet(domain.ReplacementRule{Source: "SPY", Target: "UPRO", Scale: 2}))
		require.NoError(t, err)
		got := bySymbol(out)
		assert.InDelta(t, 1.0, got["UPRO"], 1e-6)
		assert.Greater(t, got["QQQ"], 0.0)
		assert.InDelta(t, 1.0, sumFractions(out), 1e-12)
	})

	t.Run("shrinking frees weight for the rest", func(t *testing.T) {
		out, err := ApplyReplacements(base, replacementSet(domain.ReplacementRule{Source: "SPY", Target: "SSO", Scale: 0.5}))
		require.NoError(t, err)
		got := bySymbol(out)
		assert.InDelta(t, 0.3, got["SSO"], 1e-12)
		assert.InDelta(t, 0.7, got["QQQ"], 1e-12)
	})

	t.Run("everything replaced renormalizes", func(t *testing.T) {
		out, err := ApplyReplacements(
			[]domain.Allocation{{Symbol: "SPY", Fraction: 1}},
			replacementSet(domain.ReplacementRule{Source: "SPY", Target: "SSO", Scale: 0.5}),
		)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "SSO", out[0].Symbol)
		assert.InDelta(t, 1.0, out[0].Fraction, 1e-12)
	})

	t.Run("duplicate targets merge", func(t *testing.T) {
		out, err := ApplyReplacements(
			[]domain.Allocation{{Symbol: "SPY", Fraction: 0.3}, {Symbol: "IVV", Fraction: 0.3}, {Symbol: "QQQ", Fraction: 0.4}},
			replacementSet(
				domain.ReplacementRule{Source: "SPY", Target: "VOO", Scale: 1},
				domain.ReplacementRule{Source: "IVV", Target: "VOO", Scale: 1},
			),
		)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "QQQ", out[0].Symbol)
		assert.Equal(t, "VOO", out[1].Symbol)
		assert.InDelta(t, 0.6, out[1].Fraction, 1e-12)
	})

	t.Run("no matching rules", func(t *testing.T) {
		out, err := ApplyReplacements(base, replacementSet(domain.ReplacementRule{Source: "GLD", Target: "IAU", Scale: 1}))
		require.NoError(t, err)
		assert.Equal(t, bySymbol(base), bySymbol(out))
	})

	t.Run("invalid scale", func(t *testing.T) {
		_, err := ApplyReplacements(base, replacementSet(domain.ReplacementRule{Source: "SPY", Target: "VOO", Scale: 0}))
		assert.ErrorIs(t, err, domain.ErrNonRetryable)
	})

	t.Run("negative allocation", func(t *testing.T) {
		_, err := ApplyReplacements([]domain.Allocation{{Symbol: "SPY", Fraction: -0.1}}, replacementSet())
		assert.ErrorIs(t, err, domain.ErrNonRetryable)
	})
}

func TestApplyReplacements_PreservesTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		symbols := make([]string, n)
		weights := make([]float64, n)
		total := 0.0
		for i := range symbols {
			symbols[i] = fmt.Sprintf("S%d", i)
			weights[i] = rapid.Float64Range(0.01, 1).Draw(t, fmt.Sprintf("w%d", i))
			total += weights[i]
		}
		allocations := make([]domain.Allocation, n)
		for i := range allocations {
			allocations[i] = domain.Allocation{Symbol: symbols[i], Fraction: weights[i] / total}
		}

		var rules []domain.ReplacementRule
		for i, s := range symbols {
			if !rapid.Bool().Draw(t, fmt.Sprintf("replace%d", i)) {
				continue
			}
			target := rapid.SampledFrom([]string{"T0", "T1", "T2"}).Draw(t, fmt.Sprintf("target%d", i))
			scale := rapid.Float64Range(0.1, 3).Draw(t, fmt.Sprintf("scale%d", i))
			rules = append(rules, domain.ReplacementRule{Source: s, Target: target, Scale: scale})
		}

		out, err := ApplyReplacements(allocations, replacementSet(rules...))
		require.NoError(t, err)

		assert.InDelta(t, 1.0, sumFractions(out), 1e-9)
		seen := make(map[string]bool, len(out))
		for _, a := range out {
			assert.False(t, seen[a.Symbol], "duplicate symbol %s", a.Symbol)
			seen[a.Symbol] = true
			assert.GreaterOrEqual(t, a.Fraction, 0.0)
		}
	})
}
