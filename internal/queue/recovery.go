package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aristath/rebalancer/internal/domain"
)

var errUnrecoverable = errors.New("orphan cannot be rebuilt")

// RecoverOrphans rebuilds work whose dedup key is held but which is no longer in
// active, retry or delayed. That happens when the process died while an event
// was being processed. Run it once at startup, before any worker starts.
func (q *Queue) RecoverOrphans(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	held, err := q.client.SMembers(ctx, q.keys.Dedup).Result()
	if err != nil {
		return report, fmt.Errorf("failed to read dedup set: %w", err)
	}
	if len(held) == 0 {
		return report, nil
	}

	represented, err := q.representedKeys(ctx)
	if err != nil {
		return report, err
	}

	for _, key := range held {
		if represented[key] {
			continue
		}

		ev, err := q.rebuild(ctx, key)
		if err != nil && !errors.Is(err, errUnrecoverable) {
			return report, err
		}
		if err != nil {
			q.log.Warn().Err(err).Str("dedup_key", key).Msg("Cannot rebuild orphaned work, releasing")
			if err := releaseScript.Run(ctx, q.client, []string{q.keys.Dedup, q.keys.Context}, key).Err(); err != nil {
				return report, fmt.Errorf("failed to release orphan %s: %w", key, err)
			}
			report.Dropped = append(report.Dropped, key)
			continue
		}

		encoded, err := encodeEvent(ev)
		if err != nil {
			return report, err
		}
		record, err := encodeRecord(ev)
		if err != nil {
			return report, err
		}
		pushed, err := restoreScript.Run(ctx, q.client,
			[]string{q.keys.Dedup, q.keys.Context, q.keys.Active},
			key, record, encoded,
		).Int()
		if err != nil {
			return report, fmt.Errorf("failed to restore %s: %w", key, err)
		}
		if pushed == 1 {
			report.Recovered = append(report.Recovered, key)
			q.log.Info().
				Str("dedup_key", key).
				Str("event_id", ev.ID).
				Msg("Recovered orphaned work")
		}
	}

	return report, nil
}

func (q *Queue) representedKeys(ctx context.Context) (map[string]bool, error) {
	represented := make(map[string]bool)

	active, err := q.client.LRange(ctx, q.keys.Active, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read active: %w", err)
	}
	retry, err := q.client.ZRange(ctx, q.keys.Retry, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read retry: %w", err)
	}
	delayed, err := q.client.ZRange(ctx, q.keys.Delayed, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read delayed: %w", err)
	}

	for _, group := range [][]string{active, retry, delayed} {
		for _, raw := range group {
			ev, err := decodeEvent(raw)
			if err != nil {
				continue
			}
			represented[ev.DedupKey()] = true
		}
	}
	return represented, nil
}

// rebuild reconstructs an event from its recovery record, falling back to account defaults
func (q *Queue) rebuild(ctx context.Context, key string) (*domain.Event, error) {
	accountID, command, err := domain.ParseDedupKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnrecoverable, err)
	}

	ev := &domain.Event{
		AccountID:   accountID,
		Command:     command,
		TimesQueued: 1,
		CreatedAt:   q.now().UTC(),
		Recovered:   true,
	}

	raw, err := q.client.HGet(ctx, q.keys.Context, key).Result()
	switch {
	case err == nil:
		rec, decodeErr := decodeRecord(raw)
		if decodeErr == nil {
			ev.ID = rec.EventID
			ev.Payload = rec.Payload
			if !rec.CreatedAt.IsZero() {
				ev.CreatedAt = rec.CreatedAt
			}
			// re-entering active counts as another queueing; retries carry over
			if rec.TimesQueued > 0 {
				ev.TimesQueued = rec.TimesQueued + 1
			}
			ev.Retries = rec.Retries
		} else {
			q.log.Warn().Err(decodeErr).Str("dedup_key", key).Msg("Recovery record unreadable")
		}
	case errors.Is(err, redis.Nil):
	default:
		return nil, fmt.Errorf("failed to read recovery record: %w", err)
	}

	if ev.Payload == nil && q.defaults != nil {
		acct, err := q.defaults.AccountDefaults(ctx, accountID)
		switch {
		case err == nil:
			ev.Payload = acct.Payload()
		case errors.Is(err, domain.ErrAccountNotFound):
		default:
			return nil, fmt.Errorf("failed to load account defaults: %w", err)
		}
	}

	if ev.Payload == nil {
		if command.RequiresStrategy() {
			return nil, fmt.Errorf("%w: no payload available for %s", errUnrecoverable, command)
		}
		ev.Payload = domain.Payload{}
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return ev, nil
}
