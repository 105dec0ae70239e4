package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Promoter is the part of the queue the scheduler drives
type Promoter interface {
	PromoteRetries(ctx context.Context, now time.Time) (int, error)
	PromoteDelayed(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the periodic retry and delayed sweeps.
// The two sweeps are independent cron entries; a sweep still running when its
// next tick fires is skipped rather than stacked.
type Scheduler struct {
	promoter      Promoter
	retryEvery    time.Duration
	delayedEvery  time.Duration
	sweepTimeout  time.Duration
	cron          *cron.Cron
	log           zerolog.Logger
	started       bool
	mu            sync.Mutex
	retryEntry    cron.EntryID
	delayedEntry  cron.EntryID
	lastSweepErrs map[string]error
}

// NewScheduler creates a sweep scheduler
func NewScheduler(promoter Promoter, retryEvery, delayedEvery time.Duration) *Scheduler {
	if retryEvery < time.Second {
		retryEvery = 5 * time.Second
	}
	if delayedEvery < time.Second {
		delayedEvery = time.Minute
	}
	return &Scheduler{
		promoter:      promoter,
		retryEvery:    retryEvery,
		delayedEvery:  delayedEvery,
		sweepTimeout:  30 * time.Second,
		log:           zerolog.Nop(),
		lastSweepErrs: make(map[string]error),
	}
}

// SetLogger sets the logger for the scheduler
func (s *Scheduler) SetLogger(log zerolog.Logger) {
	s.log = log.With().Str("component", "sweep_scheduler").Logger()
}

// Start registers both sweeps and starts the cron runner
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warn().Msg("Sweep scheduler already started, ignoring")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	retryEntry, err := c.AddFunc(fmt.Sprintf("@every %s", s.retryEvery), func() {
		s.sweep("retry", s.promoter.PromoteRetries)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry sweep: %w", err)
	}
	delayedEntry, err := c.AddFunc(fmt.Sprintf("@every %s", s.delayedEvery), func() {
		s.sweep("delayed", s.promoter.PromoteDelayed)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule delayed sweep: %w", err)
	}

	c.Start()
	s.cron = c
	s.retryEntry = retryEntry
	s.delayedEntry = delayedEntry
	s.started = true

	s.log.Info().
		Dur("retry_every", s.retryEvery).
		Dur("delayed_every", s.delayedEvery).
		Msg("Sweep scheduler started")
	return nil
}

// Stop stops the cron runner and waits for running sweeps to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.started = false
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	s.log.Info().Msg("Sweep scheduler stopped")
}

// RunOnce runs both sweeps immediately, outside the cron schedule
func (s *Scheduler) RunOnce() {
	s.sweep("retry", s.promoter.PromoteRetries)
	s.sweep("delayed", s.promoter.PromoteDelayed)
}

// NextRuns reports the next fire time of each sweep, zero when not started
func (s *Scheduler) NextRuns() (retry, delayed time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}, time.Time{}
	}
	return s.cron.Entry(s.retryEntry).Next, s.cron.Entry(s.delayedEntry).Next
}

func (s *Scheduler) sweep(name string, fn func(context.Context, time.Time) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()

	moved, err := fn(ctx, time.Now())

	s.mu.Lock()
	prev := s.lastSweepErrs[name]
	s.lastSweepErrs[name] = err
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("sweep", name).Int("moved", moved).Msg("Sweep failed")
		return
	}
	if prev != nil {
		s.log.Info().Str("sweep", name).Msg("Sweep recovered")
	}
	if moved > 0 {
		s.log.Debug().Str("sweep", name).Int("moved", moved).Msg("Sweep completed")
	}
}
