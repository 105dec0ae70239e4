package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/utils"
)

// store is the part of the allocation repository the admin flags write to
type store interface {
	SetAllocations(ctx context.Context, strategy string, allocations []domain.Allocation) error
	SetReplacementSet(ctx context.Context, set domain.ReplacementSet) error
	UpsertAccount(ctx context.Context, acct domain.AccountContext) error
}

type allocationUpdate struct {
	strategy    string
	allocations []domain.Allocation
}

// splitNamed splits "name=body" and rejects an empty name or body
func splitNamed(flagName, value string) (string, string, error) {
	name, body, ok := strings.Cut(value, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(body) == "" {
		return "", "", fmt.Errorf("-%s wants name=items, got %q", flagName, value)
	}
	return name, body, nil
}

// parseAllocations reads "core=SPY:0.6,QQQ:0.4"
func parseAllocations(value string) (*allocationUpdate, error) {
	strategy, body, err := splitNamed("set-allocations", value)
	if err != nil {
		return nil, err
	}

	update := &allocationUpdate{strategy: strategy}
	for _, item := range utils.ParseCSV(body) {
		symbol, raw, ok := strings.Cut(item, ":")
		symbol = strings.TrimSpace(symbol)
		if !ok || symbol == "" {
			return nil, fmt.Errorf("allocation %q wants SYMBOL:fraction", item)
		}
		fraction, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || fraction < 0 {
			return nil, fmt.Errorf("allocation %q has an invalid fraction", item)
		}
		update.allocations = append(update.allocations, domain.Allocation{Symbol: symbol, Fraction: fraction})
	}
	return update, nil
}

// parseReplacements reads "cheap=SPY>VOO:1,QQQ>QQQM:0.5". The scale defaults to 1.
func parseReplacements(value string) (*domain.ReplacementSet, error) {
	name, body, err := splitNamed("set-replacements", value)
	if err != nil {
		return nil, err
	}

	set := &domain.ReplacementSet{Name: name}
	for _, item := range utils.ParseCSV(body) {
		pair, rawScale, hasScale := strings.Cut(item, ":")
		source, target, ok := strings.Cut(pair, ">")
		source, target = strings.TrimSpace(source), strings.TrimSpace(target)
		if !ok || source == "" || target == "" {
			return nil, fmt.Errorf("replacement %q wants SOURCE>TARGET[:scale]", item)
		}
		scale := 1.0
		if hasScale {
			scale, err = strconv.ParseFloat(strings.TrimSpace(rawScale), 64)
			if err != nil || scale <= 0 {
				return nil, fmt.Errorf("replacement %q has an invalid scale", item)
			}
		}
		set.Rules = append(set.Rules, domain.ReplacementRule{Source: source, Target: target, Scale: scale})
	}
	return set, nil
}

func (o options) admin() bool {
	return o.allocations != nil || o.replacements != nil || o.account != ""
}

// applyAdmin writes the requested configuration before anything is enqueued
func applyAdmin(ctx context.Context, st store, opts options, stdout io.Writer) error {
	if st == nil {
		return errors.New("allocation store not available")
	}

	if u := opts.allocations; u != nil {
		if err := st.SetAllocations(ctx, u.strategy, u.allocations); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "strategy %s: %d allocations stored\n", u.strategy, len(u.allocations))
	}

	if set := opts.replacements; set != nil {
		if err := st.SetReplacementSet(ctx, *set); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "replacement set %s: %d rules stored\n", set.Name, len(set.Rules))
	}

	if opts.account != "" {
		acct := domain.AccountContext{
			AccountID:      opts.account,
			StrategyName:   opts.strategy,
			ReplacementSet: opts.replacementSet,
		}
		if opts.reserve >= 0 {
			acct.CashReservePercent = opts.reserve
		}
		if err := st.UpsertAccount(ctx, acct); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "account %s: defaults stored (strategy %s)\n", acct.AccountID, acct.StrategyName)
	}
	return nil
}
