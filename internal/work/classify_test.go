package work

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"gateway order rejection", errors.New("Error 201, reqId 5: order rejected - insufficient buying power"), OutcomeNonRetryable},
		{"error 203", errors.New("Error 203, reqId 9: the security is not available or allowed for this account"), OutcomeNonRetryable},
		{"insufficient funds mixed case", errors.New("Insufficient Funds to place order"), OutcomeNonRetryable},
		{"pattern day trader", errors.New("account flagged as Pattern Day Trader"), OutcomeNonRetryable},
		{"margin", errors.New("order would violate margin requirement"), OutcomeNonRetryable},
		{"wrapped sentinel", fmt.Errorf("replacement set: %w", domain.ErrNonRetryable), OutcomeNonRetryable},
		{"invalid payload", fmt.Errorf("%w: strategy missing", domain.ErrInvalidPayload), OutcomeNonRetryable},
		{"partial fill message", errors.New("order 42 partially filled"), OutcomePartialExecution},
		{"execution timeout", errors.New("execution timeout waiting for SELL orders"), OutcomePartialExecution},
		{"orders still open sentinel", fmt.Errorf("waiting: %w", domain.ErrOrdersStillOpen), OutcomePartialExecution},
		{"partial sentinel beats message", fmt.Errorf("%w: buy AAPL: insufficient funds", domain.ErrPartialExecution), OutcomePartialExecution},
		{"connection error", errors.New("dial tcp 127.0.0.1:4002: connection refused"), OutcomeRetryable},
		{"nil", nil, OutcomeRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
