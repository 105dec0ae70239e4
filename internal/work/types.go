package work

import (
	"context"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/queue"
)

// DefaultMaxAttempts is the number of times an event may be queued before a
// retryable failure becomes permanent.
const DefaultMaxAttempts = 10

// Outcome is the classification of a failed command
type Outcome string

const (
	OutcomeRetryable        Outcome = "retryable"
	OutcomeNonRetryable     Outcome = "non_retryable"
	OutcomePartialExecution Outcome = "partial_execution"
)

// Disposition is where an event ended up after processing
type Disposition string

const (
	DispositionCompleted         Disposition = "completed"
	DispositionRetrying          Disposition = "retrying"
	DispositionDelayed           Disposition = "delayed"
	DispositionManualReview      Disposition = "manual_review"
	DispositionPartialExecution  Disposition = "partial_execution"
	DispositionPermanentlyFailed Disposition = "permanently_failed"
)

// Request is the input handed to a command
type Request struct {
	Event   *domain.Event
	Account domain.AccountContext
}

// Result is what a command returns. A nil Err means success.
type Result struct {
	Output string
	Data   map[string]interface{}
	Err    error
}

// Success reports whether the command succeeded
func (r Result) Success() bool {
	return r.Err == nil
}

// Succeeded builds a successful result
func Succeeded(output string) Result {
	return Result{Output: output}
}

// Failed builds a failed result
func Failed(err error) Result {
	return Result{Err: err}
}

// QueueInspector exposes read-only queue state to commands
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// HealthChecker is a dependency that can verify itself, such as a database
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Capabilities bundles the collaborators a command may use
type Capabilities struct {
	Broker       domain.Broker
	Allocations  domain.AllocationSource
	Replacements domain.ReplacementSource
	Notifier     domain.Notifier
	MarketHours  domain.MarketHours
	Queue        QueueInspector
	Store        HealthChecker
}

// Command handles one kind of event
type Command interface {
	Kind() domain.ExecCommand
	Execute(ctx context.Context, req Request, caps Capabilities) Result
}

// CommandFunc adapts a function to the Command interface
type CommandFunc struct {
	Command domain.ExecCommand
	Fn      func(ctx context.Context, req Request, caps Capabilities) Result
}

// Kind implements Command
func (c CommandFunc) Kind() domain.ExecCommand { return c.Command }

// Execute implements Command
func (c CommandFunc) Execute(ctx context.Context, req Request, caps Capabilities) Result {
	return c.Fn(ctx, req, caps)
}
