package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowThreshold is the duration above which a timed operation is logged as slow
const SlowThreshold = 2 * time.Minute

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func Handle() {
//	    defer utils.OperationTimer("rebalance", log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		if duration > SlowThreshold {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected")
		} else {
			log.Debug().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Operation completed")
		}
		return duration
	}
}
