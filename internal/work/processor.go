package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/queue"
	"github.com/aristath/rebalancer/internal/utils"
)

// EventQueue is the part of the durable queue the processor drives
type EventQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*domain.Event, error)
	CompleteAndRelease(ctx context.Context, accountID string, command domain.ExecCommand) error
	Retry(ctx context.Context, ev *domain.Event, reason string) error
	Delay(ctx context.Context, ev *domain.Event, executeAt time.Time, reason string) error
	Stats(ctx context.Context) (queue.Stats, error)
}

// Config tunes the processor
type Config struct {
	Workers        int
	DequeueTimeout time.Duration
	MaxAttempts    int

	// Queue transitions are retried with this schedule before giving up
	TransitionAttempts int
	TransitionBackoff  utils.Backoff
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 5 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.TransitionAttempts < 1 {
		c.TransitionAttempts = 5
	}
	if c.TransitionBackoff.Min <= 0 {
		c.TransitionBackoff = utils.DefaultBackoff()
	}
	return c
}

// Processor pulls events off the queue and runs them through their lifecycle.
type Processor struct {
	queue    EventQueue
	registry *Registry
	caps     Capabilities
	notifier domain.Notifier
	locks    *AccountLocks
	sem      *semaphore.Weighted
	cfg      Config
	log      zerolog.Logger

	inFlight sync.WaitGroup
	running  atomic.Int64
}

// NewProcessor creates a new event processor.
func NewProcessor(q EventQueue, registry *Registry, caps Capabilities, cfg Config, log zerolog.Logger) *Processor {
	cfg = cfg.withDefaults()

	notifier := caps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if caps.Queue == nil {
		caps.Queue = q
	}

	return &Processor{
		queue:    q,
		registry: registry,
		caps:     caps,
		notifier: notifier,
		locks:    NewAccountLocks(),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		cfg:      cfg,
		log:      log.With().Str("component", "processor").Logger(),
	}
}

// Running returns the number of events currently being handled
func (p *Processor) Running() int64 {
	return p.running.Load()
}

// Run dispatches events until ctx is cancelled, then waits for in-flight events.
// In-flight events keep running after cancellation; only dispatching stops.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info().
		Int("workers", p.cfg.Workers).
		Int("max_attempts", p.cfg.MaxAttempts).
		Interface("commands", p.registry.Kinds()).
		Msg("Event processor started")

	failures := 0
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}

		ev, err := p.queue.Dequeue(ctx, p.cfg.DequeueTimeout)
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			failures++
			wait := p.cfg.TransitionBackoff.Next(failures)
			p.log.Error().Err(err).Dur("backoff", wait).Msg("Dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		failures = 0

		if ev == nil {
			p.sem.Release(1)
			continue
		}

		p.inFlight.Add(1)
		go func(ev *domain.Event) {
			defer p.inFlight.Done()
			defer p.sem.Release(1)
			p.Handle(context.WithoutCancel(ctx), ev)
		}(ev)
	}

	p.log.Info().Int64("in_flight", p.running.Load()).Msg("Event processor stopping, waiting for in-flight events")
	p.inFlight.Wait()
	p.log.Info().Msg("Event processor stopped")
	return nil
}

// Handle runs one event to a terminal or parked disposition.
func (p *Processor) Handle(ctx context.Context, ev *domain.Event) Disposition {
	p.running.Add(1)
	defer p.running.Add(-1)

	log := p.log.With().
		Str("event_id", ev.ID).
		Str("account_id", ev.AccountID).
		Str("command", string(ev.Command)).
		Int("times_queued", ev.TimesQueued).
		Int("attempt", ev.Attempt()).
		Logger()
	defer utils.OperationTimer("event:"+string(ev.Command), log)()

	p.notify(ctx, ev, domain.NotifyStarted, nil)

	cmd := p.registry.Get(ev.Command)
	if cmd == nil {
		return p.fail(ctx, ev, log, fmt.Sprintf("no handler registered for %q", ev.Command))
	}

	acct, err := domain.AccountContextFromEvent(ev)
	if err != nil {
		return p.fail(ctx, ev, log, err.Error())
	}

	unlock := p.locks.Lock(ev.AccountID)
	res := p.execute(ctx, cmd, Request{Event: ev, Account: acct})
	unlock()

	return p.settle(ctx, ev, log, res)
}

func (p *Processor) execute(ctx context.Context, cmd Command, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	return cmd.Execute(ctx, req, p.caps)
}

func (p *Processor) settle(ctx context.Context, ev *domain.Event, log zerolog.Logger, res Result) Disposition {
	if res.Success() {
		p.release(ctx, ev, log)
		kind := domain.NotifySucceeded
		if ev.Retries > 0 {
			kind = domain.NotifySucceededAfterRetry
		}
		extra := map[string]interface{}{"output": res.Output}
		for k, v := range res.Data {
			extra[k] = v
		}
		p.notify(ctx, ev, kind, extra)
		log.Info().Msg("Event completed")
		return DispositionCompleted
	}

	var deferred *domain.DeferredError
	if errors.As(res.Err, &deferred) {
		if deferred.NextEligible == nil {
			return p.fail(ctx, ev, log, deferred.Error())
		}
		executeAt := *deferred.NextEligible
		err := p.transition(ctx, func(ctx context.Context) error {
			return p.queue.Delay(ctx, ev, executeAt, deferred.Reason)
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to delay event, leaving dedup key for recovery")
		}
		p.notify(ctx, ev, domain.NotifyDelayed, map[string]interface{}{
			"reason":     deferred.Reason,
			"execute_at": executeAt,
		})
		log.Info().Time("execute_at", executeAt).Str("reason", deferred.Reason).Msg("Event delayed")
		return DispositionDelayed
	}

	switch Classify(res.Err) {
	case OutcomeNonRetryable:
		p.release(ctx, ev, log)
		p.notify(ctx, ev, domain.NotifyManualReview, failureExtra(res))
		log.Warn().Err(res.Err).Msg("Non-retryable failure, manual review required")
		return DispositionManualReview

	case OutcomePartialExecution:
		p.release(ctx, ev, log)
		p.notify(ctx, ev, domain.NotifyPartialExecution, failureExtra(res))
		log.Error().Err(res.Err).Msg("Partial execution, manual review required")
		return DispositionPartialExecution
	}

	if ev.Attempt() >= p.cfg.MaxAttempts {
		return p.fail(ctx, ev, log, fmt.Sprintf("giving up after %d attempts: %v", ev.Attempt(), res.Err))
	}

	reason := res.Err.Error()
	attempt := ev.Attempt()
	err := p.transition(ctx, func(ctx context.Context) error {
		return p.queue.Retry(ctx, ev, reason)
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to schedule retry, leaving dedup key for recovery")
	}
	p.notify(ctx, ev, domain.NotifyRetrying, map[string]interface{}{
		"error":   reason,
		"attempt": attempt,
	})
	log.Warn().Err(res.Err).Msg("Retryable failure, event parked for retry")
	return DispositionRetrying
}

func (p *Processor) fail(ctx context.Context, ev *domain.Event, log zerolog.Logger, reason string) Disposition {
	p.release(ctx, ev, log)
	p.notify(ctx, ev, domain.NotifyCritical, map[string]interface{}{
		"error": reason,
	})
	log.Error().Str("reason", reason).Msg("Event permanently failed")
	return DispositionPermanentlyFailed
}

func (p *Processor) release(ctx context.Context, ev *domain.Event, log zerolog.Logger) {
	err := p.transition(ctx, func(ctx context.Context) error {
		return p.queue.CompleteAndRelease(ctx, ev.AccountID, ev.Command)
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to release dedup key")
	}
}

func (p *Processor) transition(ctx context.Context, fn func(context.Context) error) error {
	return utils.Retry(ctx, p.cfg.TransitionAttempts, p.cfg.TransitionBackoff, fn)
}

func (p *Processor) notify(ctx context.Context, ev *domain.Event, kind domain.NotificationKind, extra map[string]interface{}) {
	p.notifier.Notify(ctx, ev, kind, extra)
}

// failureExtra describes a failure that needs a human, including whatever
// the command managed to report before failing
func failureExtra(res Result) map[string]interface{} {
	extra := map[string]interface{}{
		"error":         res.Err.Error(),
		"manual_review": true,
	}
	if res.Output != "" {
		extra["output"] = res.Output
	}
	return extra
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *domain.Event, domain.NotificationKind, map[string]interface{}) {
}
