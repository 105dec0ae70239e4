package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// Options configures a Queue
type Options struct {
	Prefix     string
	RetryDelay time.Duration
	// Defaults is consulted by RecoverOrphans when no recovery record survived. Optional.
	Defaults domain.AccountDefaults
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// Queue is the Redis-backed durable event queue.
// All state lives in Redis; a Queue value holds no work of its own and is safe for concurrent use.
type Queue struct {
	client     redis.UniversalClient
	keys       Keys
	retryDelay time.Duration
	defaults   domain.AccountDefaults
	now        func() time.Time
	log        zerolog.Logger
}

// New creates a queue on top of an existing Redis client
func New(client redis.UniversalClient, opts Options, log zerolog.Logger) *Queue {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 60 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		client:     client,
		keys:       NewKeys(opts.Prefix),
		retryDelay: retryDelay,
		defaults:   opts.Defaults,
		now:        now,
		log:        log.With().Str("component", "queue").Logger(),
	}
}

// Keys returns the Redis key names used by this queue
func (q *Queue) Keys() Keys {
	return q.keys
}

// Enqueue adds new work for an account. It returns ErrDuplicate when the same
// account/command pair is already anywhere in the pipeline.
func (q *Queue) Enqueue(ctx context.Context, accountID string, command domain.ExecCommand, payload domain.Payload) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("%w: account id is required", domain.ErrInvalidPayload)
	}
	if payload == nil {
		payload = domain.Payload{}
	}

	ev := &domain.Event{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Command:     command,
		Payload:     payload.Clone(),
		TimesQueued: 1,
		CreatedAt:   q.now().UTC(),
	}

	encoded, err := encodeEvent(ev)
	if err != nil {
		return "", err
	}
	record, err := encodeRecord(ev)
	if err != nil {
		return "", err
	}

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.keys.Dedup, q.keys.Context, q.keys.Active},
		ev.DedupKey(), record, encoded,
	).Int()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", ev.DedupKey(), err)
	}
	if added == 0 {
		q.log.Debug().Str("dedup_key", ev.DedupKey()).Msg("Duplicate event rejected")
		return "", fmt.Errorf("%w: %s", ErrDuplicate, ev.DedupKey())
	}

	q.log.Info().
		Str("event_id", ev.ID).
		Str("account_id", accountID).
		Str("command", string(command)).
		Msg("Event enqueued")
	return ev.ID, nil
}

// Dequeue blocks up to timeout for the next active event. It returns nil, nil on timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Event, error) {
	res, err := q.client.BLPop(ctx, timeout, q.keys.Active).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of length %d", len(res))
	}

	ev, err := decodeEvent(res[1])
	if err != nil {
		q.dropUndecodable(ctx, res[1], err)
		return nil, err
	}
	return ev, nil
}

// dropUndecodable releases the dedup key of an entry that cannot be decoded,
// so new work for the same account and command is not rejected forever.
func (q *Queue) dropUndecodable(ctx context.Context, raw string, decodeErr error) {
	key, ok := peekDedupKey(raw)
	if !ok {
		q.log.Error().Err(decodeErr).Int("bytes", len(raw)).Msg("Dropped undecodable event, dedup key unknown")
		return
	}
	if err := releaseScript.Run(ctx, q.client, []string{q.keys.Dedup, q.keys.Context}, key).Err(); err != nil {
		q.log.Error().Err(err).Str("dedup_key", key).Msg("Failed to release dedup key of undecodable event")
		return
	}
	q.log.Error().Err(decodeErr).Str("dedup_key", key).Msg("Dropped undecodable event and released its dedup key")
}

// CompleteAndRelease releases the dedup key of a finished unit of work
func (q *Queue) CompleteAndRelease(ctx context.Context, accountID string, command domain.ExecCommand) error {
	key := domain.DedupKey(accountID, command)
	removed, err := releaseScript.Run(ctx, q.client, []string{q.keys.Dedup, q.keys.Context}, key).Int()
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	if removed == 0 {
		q.log.Warn().Str("dedup_key", key).Msg("Released dedup key that was not held")
	}
	return nil
}

// Retry parks a failed event in the retry set. The dedup key stays held.
func (q *Queue) Retry(ctx context.Context, ev *domain.Event, reason string) error {
	next := *ev
	next.TimesQueued++
	next.Retries++
	next.LastError = reason

	if err := q.park(ctx, q.keys.Retry, &next, q.now()); err != nil {
		return fmt.Errorf("failed to schedule retry for %s: %w", ev.DedupKey(), err)
	}
	*ev = next
	return nil
}

// Delay parks an event until executeAt. The dedup key stays held.
func (q *Queue) Delay(ctx context.Context, ev *domain.Event, executeAt time.Time, reason string) error {
	next := *ev
	next.TimesQueued++
	next.DelayReason = reason
	next.ExecuteAt = executeAt.UTC()

	if err := q.park(ctx, q.keys.Delayed, &next, executeAt); err != nil {
		return fmt.Errorf("failed to delay %s: %w", ev.DedupKey(), err)
	}
	*ev = next
	return nil
}

func (q *Queue) park(ctx context.Context, key string, ev *domain.Event, at time.Time) error {
	encoded, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	record, err := encodeRecord(ev)
	if err != nil {
		return err
	}
	score := strconv.FormatFloat(toScore(at), 'f', -1, 64)
	return parkScript.Run(ctx, q.client,
		[]string{key, q.keys.Dedup, q.keys.Context},
		score, encoded, ev.DedupKey(), record,
	).Err()
}

// PromoteRetries moves retry events older than the retry delay to the back of active
func (q *Queue) PromoteRetries(ctx context.Context, now time.Time) (int, error) {
	return q.promote(ctx, q.keys.Retry, now.Add(-q.retryDelay))
}

// PromoteDelayed moves delayed events whose execute time has passed to the back of active
func (q *Queue) PromoteDelayed(ctx context.Context, now time.Time) (int, error) {
	return q.promote(ctx, q.keys.Delayed, now)
}

// PromoteReady runs both sweeps
func (q *Queue) PromoteReady(ctx context.Context, now time.Time) (int, error) {
	retried, err := q.PromoteRetries(ctx, now)
	if err != nil {
		return retried, err
	}
	delayed, err := q.PromoteDelayed(ctx, now)
	return retried + delayed, err
}

func (q *Queue) promote(ctx context.Context, source string, cutoff time.Time) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, source, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(toScore(cutoff), 'f', -1, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", source, err)
	}

	moved := 0
	for _, member := range members {
		ev, err := decodeEvent(member)
		if err != nil {
			q.log.Error().Err(err).Str("source", source).Msg("Dropping undecodable member")
			if err := q.client.ZRem(ctx, source, member).Err(); err != nil {
				return moved, fmt.Errorf("failed to drop undecodable member: %w", err)
			}
			continue
		}

		ok, err := promoteScript.Run(ctx, q.client,
			[]string{source, q.keys.Active, q.keys.Dedup},
			member, ev.DedupKey(),
		).Int()
		if err != nil {
			return moved, fmt.Errorf("failed to promote %s: %w", ev.DedupKey(), err)
		}
		if ok == 1 {
			moved++
			q.log.Debug().
				Str("event_id", ev.ID).
				Str("dedup_key", ev.DedupKey()).
				Str("source", source).
				Msg("Event promoted to active")
		}
	}

	if moved > 0 {
		q.log.Info().Int("count", moved).Str("source", source).Msg("Promoted events")
	}
	return moved, nil
}

// Stats returns the size of every channel
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	active := pipe.LLen(ctx, q.keys.Active)
	retry := pipe.ZCard(ctx, q.keys.Retry)
	delayed := pipe.ZCard(ctx, q.keys.Delayed)
	dedup := pipe.SCard(ctx, q.keys.Dedup)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return Stats{
		Active:  active.Val(),
		Retry:   retry.Val(),
		Delayed: delayed.Val(),
		Dedup:   dedup.Val(),
	}, nil
}

// ListActive returns active events in dequeue order
func (q *Queue) ListActive(ctx context.Context) ([]*domain.Event, error) {
	raw, err := q.client.LRange(ctx, q.keys.Active, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active: %w", err)
	}
	events := make([]*domain.Event, 0, len(raw))
	for _, r := range raw {
		ev, err := decodeEvent(r)
		if err != nil {
			q.log.Warn().Err(err).Msg("Skipping undecodable active event")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ListRetry returns retry events ordered by retry time
func (q *Queue) ListRetry(ctx context.Context) ([]ScoredEvent, error) {
	return q.listScored(ctx, q.keys.Retry)
}

// ListDelayed returns delayed events ordered by execute time
func (q *Queue) ListDelayed(ctx context.Context) ([]ScoredEvent, error) {
	return q.listScored(ctx, q.keys.Delayed)
}

func (q *Queue) listScored(ctx context.Context, key string) ([]ScoredEvent, error) {
	raw, err := q.client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", key, err)
	}
	out := make([]ScoredEvent, 0, len(raw))
	for _, z := range raw {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		ev, err := decodeEvent(member)
		if err != nil {
			q.log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable event")
			continue
		}
		out = append(out, ScoredEvent{Event: ev, Score: fromScore(z.Score)})
	}
	return out, nil
}

// ListDedupKeys returns every held dedup key, sorted
func (q *Queue) ListDedupKeys(ctx context.Context) ([]string, error) {
	keys, err := q.client.SMembers(ctx, q.keys.Dedup).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dedup keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
