package testing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/queue"
)

// Notification is one call recorded by MockNotifier
type Notification struct {
	EventID string
	Kind    domain.NotificationKind
	Extra   map[string]interface{}
}

// MockNotifier records every notification it receives
type MockNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records the notification
func (m *MockNotifier) Notify(_ context.Context, ev *domain.Event, kind domain.NotificationKind, extra map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ""
	if ev != nil {
		id = ev.ID
	}
	m.notifications = append(m.notifications, Notification{EventID: id, Kind: kind, Extra: extra})
}

// Notifications returns a copy of everything recorded so far
func (m *MockNotifier) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// Kinds returns the recorded notification kinds in order
func (m *MockNotifier) Kinds() []domain.NotificationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]domain.NotificationKind, 0, len(m.notifications))
	for _, n := range m.notifications {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

// Last returns the most recent notification
func (m *MockNotifier) Last() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notifications) == 0 {
		return Notification{}, false
	}
	return m.notifications[len(m.notifications)-1], true
}

// MockAllocationSource is a mock implementation of domain.AllocationSource for testing
type MockAllocationSource struct {
	mu          sync.RWMutex
	allocations map[string][]domain.Allocation
	err         error
}

// NewMockAllocationSource creates a new mock allocation source
func NewMockAllocationSource() *MockAllocationSource {
	return &MockAllocationSource{
		allocations: make(map[string][]domain.Allocation),
	}
}

// SetAllocations sets the allocations returned for a strategy
func (m *MockAllocationSource) SetAllocations(strategy string, allocations []domain.Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations[strategy] = allocations
}

// SetError sets the error to return
func (m *MockAllocationSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetAllocations returns the allocations for a strategy
func (m *MockAllocationSource) GetAllocations(_ context.Context, strategy string) ([]domain.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	src := m.allocations[strategy]
	out := make([]domain.Allocation, len(src))
	copy(out, src)
	return out, nil
}

// MockReplacementSource is a mock implementation of domain.ReplacementSource for testing
type MockReplacementSource struct {
	mu   sync.RWMutex
	sets map[string]domain.ReplacementSet
}

// NewMockReplacementSource creates a new mock replacement source
func NewMockReplacementSource() *MockReplacementSource {
	return &MockReplacementSource{sets: make(map[string]domain.ReplacementSet)}
}

// SetReplacementSet stores a named set
func (m *MockReplacementSource) SetReplacementSet(set domain.ReplacementSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.Name] = set
}

// ReplacementSet returns a named set
func (m *MockReplacementSource) ReplacementSet(_ context.Context, name string) (domain.ReplacementSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[name]
	if !ok {
		return domain.ReplacementSet{}, domain.ErrReplacementSetNotFound
	}
	return set, nil
}

// MockMarketHours is a mock implementation of domain.MarketHours for testing
type MockMarketHours struct {
	mu        sync.RWMutex
	open      bool
	orderType domain.OrderType
	next      *time.Time
}

// NewMockMarketHours creates an open market that trades with market orders
func NewMockMarketHours() *MockMarketHours {
	return &MockMarketHours{open: true, orderType: domain.OrderTypeMarket}
}

// SetOpen sets whether the market is open
func (m *MockMarketHours) SetOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}

// SetOrderType sets the order type to return
func (m *MockMarketHours) SetOrderType(t domain.OrderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderType = t
}

// SetNextEligibleStart sets the next eligible start (nil for unknown)
func (m *MockMarketHours) SetNextEligibleStart(next *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = next
}

// IsOpen returns whether the market is open
func (m *MockMarketHours) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// OrderTypeNow returns the configured order type
func (m *MockMarketHours) OrderTypeNow() domain.OrderType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderType
}

// NextEligibleStart returns the configured next start
func (m *MockMarketHours) NextEligibleStart() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next
}

// MockAccountDefaults is a mock implementation of domain.AccountDefaults for testing
type MockAccountDefaults struct {
	mu       sync.RWMutex
	accounts map[string]domain.AccountContext
}

// NewMockAccountDefaults creates an empty defaults provider
func NewMockAccountDefaults() *MockAccountDefaults {
	return &MockAccountDefaults{accounts: make(map[string]domain.AccountContext)}
}

// Set stores defaults for an account
func (m *MockAccountDefaults) Set(acct domain.AccountContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acct.AccountID] = acct
}

// AccountDefaults returns defaults for an account
func (m *MockAccountDefaults) AccountDefaults(_ context.Context, accountID string) (domain.AccountContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[accountID]
	if !ok {
		return domain.AccountContext{}, domain.ErrAccountNotFound
	}
	return acct, nil
}

// ErrMockQueueClosed is returned by MockQueue.Dequeue after Close
var ErrMockQueueClosed = errors.New("mock queue closed")

// Delayed is one Delay call recorded by MockQueue
type Delayed struct {
	Event     *domain.Event
	ExecuteAt time.Time
	Reason    string
}

// MockQueue is an in-memory stand-in for the durable queue used by processor tests
type MockQueue struct {
	mu       sync.Mutex
	active   []*domain.Event
	released []string
	retried  []*domain.Event
	delayed  []Delayed

	// failures to inject per operation name before succeeding
	failures map[string]int
	failErr  error
}

// NewMockQueue creates an empty mock queue
func NewMockQueue() *MockQueue {
	return &MockQueue{
		failures: make(map[string]int),
		failErr:  errors.New("connection refused"),
	}
}

// Push appends events to the active list
func (m *MockQueue) Push(events ...*domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, events...)
}

// FailNext makes the next n calls of op ("release", "retry", "delay", "dequeue") fail
func (m *MockQueue) FailNext(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = n
}

func (m *MockQueue) injected(op string) error {
	if m.failures[op] > 0 {
		m.failures[op]--
		return m.failErr
	}
	return nil
}

// Dequeue pops the next event, waiting up to timeout when empty
func (m *MockQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if err := m.injected("dequeue"); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if len(m.active) > 0 {
			ev := m.active[0]
			m.active = m.active[1:]
			m.mu.Unlock()
			return ev, nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// CompleteAndRelease records the released dedup key
func (m *MockQueue) CompleteAndRelease(_ context.Context, accountID string, command domain.ExecCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("release"); err != nil {
		return err
	}
	m.released = append(m.released, domain.DedupKey(accountID, command))
	return nil
}

// Retry records the retried event
func (m *MockQueue) Retry(_ context.Context, ev *domain.Event, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("retry"); err != nil {
		return err
	}
	ev.TimesQueued++
	ev.Retries++
	ev.LastError = reason
	cp := *ev
	m.retried = append(m.retried, &cp)
	return nil
}

// Delay records the delayed event
func (m *MockQueue) Delay(_ context.Context, ev *domain.Event, executeAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("delay"); err != nil {
		return err
	}
	ev.TimesQueued++
	ev.DelayReason = reason
	ev.ExecuteAt = executeAt
	cp := *ev
	m.delayed = append(m.delayed, Delayed{Event: &cp, ExecuteAt: executeAt, Reason: reason})
	return nil
}

// Stats reports the in-memory sizes
func (m *MockQueue) Stats(_ context.Context) (queue.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return queue.Stats{
		Active:  int64(len(m.active)),
		Retry:   int64(len(m.retried)),
		Delayed: int64(len(m.delayed)),
	}, nil
}

// Released returns released dedup keys, sorted
func (m *MockQueue) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.released...)
	sort.Strings(out)
	return out
}

// Retried returns snapshots of retried events
func (m *MockQueue) Retried() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.retried...)
}

// DelayedEvents returns recorded Delay calls
func (m *MockQueue) DelayedEvents() []Delayed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delayed(nil), m.delayed...)
}
