// Package allocation stores strategy targets, replacement sets and account
// defaults in SQLite.
package allocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
)

// Repository handles allocation database operations
// Database: allocations.db (strategy_allocations, replacement_rules, accounts)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new allocation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

// GetAllocations returns a strategy's targets sorted by symbol.
// An unknown strategy yields an empty slice.
func (r *Repository) GetAllocations(ctx context.Context, strategy string) ([]domain.Allocation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT symbol, fraction FROM strategy_allocations WHERE strategy = ? ORDER BY symbol",
		strategy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations for %s: %w", strategy, err)
	}
	defer rows.Close()

	var out []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.Symbol, &a.Fraction); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}
	return out, nil
}

// SetAllocations replaces a strategy's targets
func (r *Repository) SetAllocations(ctx context.Context, strategy string, allocations []domain.Allocation) error {
	if strings.TrimSpace(strategy) == "" {
		return fmt.Errorf("strategy name is required")
	}
	for _, a := range allocations {
		if a.Fraction < 0 {
			return fmt.Errorf("allocation for %s is negative: %f", a.Symbol, a.Fraction)
		}
	}

	now := time.Now().Unix()
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM strategy_allocations WHERE strategy = ?", strategy); err != nil {
			return err
		}
		for _, a := range allocations {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO strategy_allocations (strategy, symbol, fraction, updated_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT (strategy, symbol) DO UPDATE SET fraction = fraction + excluded.fraction, updated_at = excluded.updated_at`,
				strategy, normalizeSymbol(a.Symbol), a.Fraction, now,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store allocations for %s: %w", strategy, err)
	}

	r.log.Info().Str("strategy", strategy).Int("symbols", len(allocations)).Msg("Allocations updated")
	return nil
}

// Strategies lists every strategy with stored targets
func (r *Repository) Strategies(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "SELECT DISTINCT strategy FROM strategy_allocations ORDER BY strategy")
}

// ReplacementSet returns a named set, or ErrReplacementSetNotFound when it has no rules
func (r *Repository) ReplacementSet(ctx context.Context, name string) (domain.ReplacementSet, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT source, target, scale FROM replacement_rules WHERE set_name = ? ORDER BY source",
		name,
	)
	if err != nil {
		return domain.ReplacementSet{}, fmt.Errorf("failed to query replacement set %s: %w", name, err)
	}
	defer rows.Close()

	set := domain.ReplacementSet{Name: name}
	for rows.Next() {
		var rule domain.ReplacementRule
		if err := rows.Scan(&rule.Source, &rule.Target, &rule.Scale); err != nil {
			return domain.ReplacementSet{}, fmt.Errorf("failed to scan replacement rule: %w", err)
		}
		set.Rules = append(set.Rules, rule)
	}
	if err := rows.Err(); err != nil {
		return domain.ReplacementSet{}, fmt.Errorf("error iterating replacement rules: %w", err)
	}

	if len(set.Rules) == 0 {
		return domain.ReplacementSet{}, fmt.Errorf("%w: %s", domain.ErrReplacementSetNotFound, name)
	}
	return set, nil
}

// SetReplacementSet replaces every rule of a named set
func (r *Repository) SetReplacementSet(ctx context.Context, set domain.ReplacementSet) error {
	if strings.TrimSpace(set.Name) == "" {
		return fmt.Errorf("replacement set name is required")
	}
	for _, rule := range set.Rules {
		if rule.Scale <= 0 {
			return fmt.Errorf("replacement %s -> %s needs a positive scale, got %f", rule.Source, rule.Target, rule.Scale)
		}
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM replacement_rules WHERE set_name = ?", set.Name); err != nil {
			return err
		}
		for _, rule := range set.Rules {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO replacement_rules (set_name, source, target, scale) VALUES (?, ?, ?, ?)",
				set.Name, normalizeSymbol(rule.Source), normalizeSymbol(rule.Target), rule.Scale,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store replacement set %s: %w", set.Name, err)
	}
	return nil
}

// AccountDefaults returns the stored settings for an account
func (r *Repository) AccountDefaults(ctx context.Context, accountID string) (domain.AccountContext, error) {
	acct := domain.AccountContext{AccountID: accountID}
	err := r.db.QueryRowContext(ctx,
		"SELECT strategy, cash_reserve_percent, replacement_set FROM accounts WHERE account_id = ?",
		accountID,
	).Scan(&acct.StrategyName, &acct.CashReservePercent, &acct.ReplacementSet)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AccountContext{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return domain.AccountContext{}, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	return acct, nil
}

// UpsertAccount stores or updates an account's defaults
func (r *Repository) UpsertAccount(ctx context.Context, acct domain.AccountContext) error {
	if strings.TrimSpace(acct.AccountID) == "" {
		return fmt.Errorf("account id is required")
	}
	if acct.CashReservePercent < 0 || acct.CashReservePercent > 100 {
		return fmt.Errorf("cash reserve %.2f outside [0,100]", acct.CashReservePercent)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (account_id, strategy, cash_reserve_percent, replacement_set, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
		   strategy = excluded.strategy,
		   cash_reserve_percent = excluded.cash_reserve_percent,
		   replacement_set = excluded.replacement_set,
		   updated_at = excluded.updated_at`,
		acct.AccountID, acct.StrategyName, acct.CashReservePercent, acct.ReplacementSet, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store account %s: %w", acct.AccountID, err)
	}
	return nil
}

// Accounts lists every configured account id
func (r *Repository) Accounts(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "SELECT account_id FROM accounts ORDER BY account_id")
}

func (r *Repository) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
