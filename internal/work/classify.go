package work

import (
	"errors"
	"strings"

	"github.com/aristath/rebalancer/internal/domain"
)

// Case-insensitive message fragments that mark a failure no retry can fix.
// "error 201" and "error 203" are the gateway's order-rejected codes.
var nonRetryablePatterns = []string{
	"insufficient funds",
	"insufficient buying power",
	"buying power",
	"trading permission",
	"no trading permissions",
	"pattern day trad",
	"account restricted",
	"account is restricted",
	"account closed",
	"account is closed",
	"not allowed",
	"margin requirement",
	"error 201",
	"error 203",
}

// Fragments that mean some orders may already have gone out.
var partialPatterns = []string{
	"partial fill",
	"partially filled",
	"partially executed",
	"partial execution",
	"execution timeout",
	"did not complete",
	"still pending",
	"still open",
}

// Classify decides what kind of failure an error represents.
// Sentinel errors win over message matching; anything unrecognised is retryable.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeRetryable
	}

	switch {
	case errors.Is(err, domain.ErrPartialExecution), errors.Is(err, domain.ErrOrdersStillOpen):
		return OutcomePartialExecution
	case errors.Is(err, domain.ErrNonRetryable), errors.Is(err, domain.ErrInvalidPayload):
		return OutcomeNonRetryable
	}

	msg := strings.ToLower(err.Error())
	for _, p := range nonRetryablePatterns {
		if strings.Contains(msg, p) {
			return OutcomeNonRetryable
		}
	}
	for _, p := range partialPatterns {
		if strings.Contains(msg, p) {
			return OutcomePartialExecution
		}
	}
	return OutcomeRetryable
}
