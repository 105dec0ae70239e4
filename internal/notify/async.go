package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// deliveryTimeout bounds one sink's handling of one notification
const deliveryTimeout = 15 * time.Second

type notification struct {
	ctx   context.Context
	event *domain.Event
	kind  domain.NotificationKind
	extra map[string]interface{}
}

// Async fans notifications out to sinks on a background goroutine.
// Notify never blocks; when the buffer is full the notification is dropped.
type Async struct {
	sinks []domain.Notifier
	ch    chan notification
	done  chan struct{}
	log   zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsync starts a fan-out notifier with the given buffer size
func NewAsync(buffer int, log zerolog.Logger, sinks ...domain.Notifier) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		sinks: sinks,
		ch:    make(chan notification, buffer),
		done:  make(chan struct{}),
		log:   log.With().Str("component", "notify_async").Logger(),
	}
	go a.run()
	return a
}

// Notify queues a notification for delivery
func (a *Async) Notify(ctx context.Context, ev *domain.Event, kind domain.NotificationKind, extra map[string]interface{}) {
	n := notification{ctx: context.WithoutCancel(ctx), kind: kind, extra: copyExtra(extra)}
	if ev != nil {
		cp := *ev
		n.event = &cp
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- n:
	default:
		a.dropped.Add(1)
		a.log.Warn().Str("kind", string(kind)).Msg("Notification buffer full, dropping")
	}
}

// Dropped returns how many notifications were discarded
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting notifications and waits for queued ones to be delivered
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.ch {
		for _, sink := range a.sinks {
			a.deliver(sink, n)
		}
	}
}

func (a *Async) deliver(sink domain.Notifier, n notification) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Msg("Notification sink panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(n.ctx, deliveryTimeout)
	defer cancel()
	sink.Notify(ctx, n.event, n.kind, n.extra)
}

func copyExtra(extra map[string]interface{}) map[string]interface{} {
	if extra == nil {
		return nil
	}
	out := make(map[string]interface{}, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
