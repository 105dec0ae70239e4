package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNonRetryable marks failures that need a human (account state, permissions, funds)
	ErrNonRetryable = errors.New("non-retryable")
	// ErrPartialExecution marks failures after some orders may already have executed
	ErrPartialExecution = errors.New("partial execution suspected")
	// ErrInvalidPayload marks events whose payload cannot produce an account context
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrOrdersStillOpen is returned by Broker.AwaitNoOpenOrders on timeout
	ErrOrdersStillOpen = errors.New("orders still open")
	// ErrReplacementSetNotFound is returned for unknown replacement set names
	ErrReplacementSetNotFound = errors.New("replacement set not found")
	// ErrAccountNotFound is returned when no static defaults exist for an account
	ErrAccountNotFound = errors.New("account not found")
)

// DeferredError signals that a command cannot run yet.
// It is policy information rather than a failure: the event is moved to the delayed channel.
type DeferredError struct {
	Reason       string
	NextEligible *time.Time
}

// Error implements error
func (e *DeferredError) Error() string {
	if e.NextEligible == nil {
		return fmt.Sprintf("deferred: %s (no next eligible time)", e.Reason)
	}
	return fmt.Sprintf("deferred: %s until %s", e.Reason, e.NextEligible.UTC().Format(time.RFC3339))
}

// NewDeferredError creates a deferral with an optional next eligible time
func NewDeferredError(reason string, next *time.Time) *DeferredError {
	return &DeferredError{Reason: reason, NextEligible: next}
}
