// Package work implements the event processor that drives queued events through
// their lifecycle.
//
// # Lifecycle
//
// Every dequeued event ends in exactly one disposition:
//   - Completed: the command succeeded, the dedup key is released
//   - Retrying: a retryable failure, the event is parked in the retry set
//   - Delayed: the command deferred itself until a known time
//   - ManualReview: a failure no retry can fix, released for a human to look at
//   - PartialExecution: some orders went out before the failure, released for review
//   - PermanentlyFailed: no handler, bad payload, no next eligible time or too many attempts
//
// Each disposition fires one notification on top of the "started" notification
// sent when processing begins.
//
// # Concurrency
//
// Run dequeues from a single goroutine and hands each event to its own goroutine,
// bounded by a weighted semaphore. Commands for the same account never overlap:
// every handler runs under a per-account lock.
package work
