// Package queue implements the Redis-backed durable event queue.
//
// Four structures share one Redis instance:
//   - active:   list, FIFO work (RPUSH on enqueue, BLPOP on dequeue)
//   - retry:    sorted set scored by the time the event was retried
//   - delayed:  sorted set scored by the time the event may run again
//   - dedup:    set of "account:command" keys, one per unit of work alive in the pipeline
//
// A hash next to the dedup set keeps the payload of every live unit of work so that work
// lost mid-processing can be rebuilt by RecoverOrphans after a crash.
package queue

import (
	"errors"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// ErrDuplicate is returned by Enqueue when equivalent work is already queued
var ErrDuplicate = errors.New("duplicate event")

// DefaultPrefix is the key prefix used when none is configured
const DefaultPrefix = "rebalancer"

// Keys holds the well-known Redis key names
type Keys struct {
	Active  string
	Retry   string
	Delayed string
	Dedup   string
	Context string
}

// NewKeys builds key names under a prefix
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{
		Active:  prefix + ":active",
		Retry:   prefix + ":retry",
		Delayed: prefix + ":delayed",
		Dedup:   prefix + ":dedup",
		Context: prefix + ":dedup:context",
	}
}

// Stats holds channel sizes for dashboards and health checks
type Stats struct {
	Active  int64 `json:"active"`
	Retry   int64 `json:"retry"`
	Delayed int64 `json:"delayed"`
	Dedup   int64 `json:"dedup"`
}

// Total returns the number of events held across the work channels
func (s Stats) Total() int64 {
	return s.Active + s.Retry + s.Delayed
}

// ScoredEvent is an event read from one of the time-scored channels
type ScoredEvent struct {
	Event *domain.Event `json:"event"`
	Score time.Time     `json:"score"`
}

// RecoveryReport summarises a RecoverOrphans run
type RecoveryReport struct {
	Recovered []string // dedup keys pushed back to active
	Dropped   []string // dedup keys released because no payload could be rebuilt
}

// recoveryRecord is persisted next to each dedup key
type recoveryRecord struct {
	EventID   string         `msgpack:"event_id"`
	Payload   domain.Payload `msgpack:"payload"`
	CreatedAt time.Time      `msgpack:"created_at"`

	TimesQueued int `msgpack:"times_queued,omitempty"`
	Retries     int `msgpack:"retries,omitempty"`
}
