package rebalancing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/rebalancer/internal/domain"
)

// residualFraction is the share of their original total that non-replaced
// allocations keep when the replacement excess would otherwise wipe them out.
const residualFraction = 1e-6

// ApplyReplacements substitutes symbols according to a replacement set.
//
// Each allocation whose symbol is a rule source becomes the rule target with
// weight allocation × scale. The total change ("excess") is absorbed by scaling
// the remaining allocations down proportionally. When that would leave them at
// or below zero they are clamped to a small residual and the whole set is
// renormalized; when there is nothing left to absorb the excess the whole set is
// renormalized too. Duplicate targets are merged. The result keeps the input
// total and is sorted by symbol.
func ApplyReplacements(allocations []domain.Allocation, set domain.ReplacementSet) ([]domain.Allocation, error) {
	if len(allocations) == 0 {
		return nil, nil
	}
	for _, a := range allocations {
		if a.Fraction < 0 {
			return nil, fmt.Errorf("%w: negative allocation %.6f for %s", domain.ErrNonRetryable, a.Fraction, a.Symbol)
		}
	}
	for _, r := range set.Rules {
		if r.Scale <= 0 {
			return nil, fmt.Errorf("%w: replacement %s -> %s has non-positive scale %.4f", domain.ErrNonRetryable, r.Source, r.Target, r.Scale)
		}
	}

	total := sumFractions(allocations)

	var replaced, others []domain.Allocation
	excess := 0.0
	for _, a := range allocations {
		rule, ok := set.Rule(a.Symbol)
		if !ok {
			others = append(others, a)
			continue
		}
		scaled := a.Fraction * rule.Scale
		excess += scaled - a.Fraction
		replaced = append(replaced, domain.Allocation{Symbol: rule.Target, Fraction: scaled})
	}

	if len(replaced) == 0 {
		return consolidate(allocations), nil
	}

	renormalize := false
	otherTotal := sumFractions(others)
	if otherTotal > 0 {
		want := otherTotal - excess
		if want <= 0 {
			want = otherTotal * residualFraction
			renormalize = true
		}
		factor := want / otherTotal
		for i := range others {
			others[i].Fraction *= factor
		}
	} else if excess != 0 {
		renormalize = true
	}

	out := consolidate(append(replaced, others...))
	if renormalize {
		normalize(out, total)
	}
	return out, nil
}

// consolidate merges duplicate symbols and sorts by symbol
func consolidate(allocations []domain.Allocation) []domain.Allocation {
	bySymbol := make(map[string]float64, len(allocations))
	for _, a := range allocations {
		bySymbol[a.Symbol] += a.Fraction
	}
	out := make([]domain.Allocation, 0, len(bySymbol))
	for symbol, fraction := range bySymbol {
		out = append(out, domain.Allocation{Symbol: symbol, Fraction: fraction})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// normalize rescales allocations in place so they sum to total
func normalize(allocations []domain.Allocation, total float64) {
	sum := sumFractions(allocations)
	if sum <= 0 {
		return
	}
	fractions := make([]float64, len(allocations))
	for i, a := range allocations {
		fractions[i] = a.Fraction
	}
	floats.Scale(total/sum, fractions)
	for i := range allocations {
		allocations[i].Fraction = fractions[i]
	}
}

func sumFractions(allocations []domain.Allocation) float64 {
	fractions := make([]float64, len(allocations))
	for i, a := range allocations {
		fractions[i] = a.Fraction
	}
	return floats.Sum(fractions)
}
