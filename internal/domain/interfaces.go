package domain

import (
	"context"
	"time"
)

// Broker defines broker-agnostic trading and portfolio operations for one account at a time.
// Reconnects, contract qualification and the tiered price fallback are owned by the implementation.
type Broker interface {
	// Account state
	GetEquity(ctx context.Context, accountID string) (float64, error)
	GetCashBalance(ctx context.Context, accountID string) (float64, error)
	GetPositions(ctx context.Context, accountID string) ([]Position, error)

	// Market data (live -> frozen -> delayed -> historical snapshot fallback)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)

	// Trading operations
	ValidateOrders(ctx context.Context, accountID string, orders []RebalanceOrder) error
	PlaceOrder(ctx context.Context, accountID, symbol string, signedQty int64, orderType OrderType) (string, error)
	GetOpenOrders(ctx context.Context, accountID string) ([]OpenOrder, error)
	CancelAllOrders(ctx context.Context, accountID string) ([]OpenOrder, error)

	// AwaitNoOpenOrders blocks until the account has no open or pending orders.
	// It returns ErrOrdersStillOpen when the timeout elapses first.
	AwaitNoOpenOrders(ctx context.Context, accountID string, timeout time.Duration) error
}

// AllocationSource returns target allocations for a strategy
type AllocationSource interface {
	GetAllocations(ctx context.Context, strategy string) ([]Allocation, error)
}

// ReplacementSource resolves named replacement sets
type ReplacementSource interface {
	// ReplacementSet returns ErrReplacementSetNotFound for unknown names
	ReplacementSet(ctx context.Context, name string) (ReplacementSet, error)
}

// AccountDefaults provides static per-account settings used when rebuilding lost work
type AccountDefaults interface {
	// AccountDefaults returns ErrAccountNotFound when nothing is configured for the account
	AccountDefaults(ctx context.Context, accountID string) (AccountContext, error)
}

// NotificationKind names a lifecycle transition worth telling a human about
type NotificationKind string

const (
	NotifyStarted             NotificationKind = "started"
	NotifySucceeded           NotificationKind = "succeeded"
	NotifySucceededAfterRetry NotificationKind = "succeeded_after_retry"
	NotifyRetrying            NotificationKind = "retrying"
	NotifyDelayed             NotificationKind = "delayed"
	NotifyManualReview        NotificationKind = "manual_review"
	NotifyPartialExecution    NotificationKind = "partial_execution"
	NotifyCritical            NotificationKind = "critical"
)

// Notifier receives lifecycle notifications.
// Implementations must not block the caller and must swallow delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event *Event, kind NotificationKind, extra map[string]interface{})
}

// MarketHours is the trading-hours policy used by the rebalance command
type MarketHours interface {
	IsOpen() bool
	OrderTypeNow() OrderType
	// NextEligibleStart returns nil when no next session can be determined
	NextEligibleStart() *time.Time
}
