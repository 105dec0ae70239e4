// Package notify delivers event lifecycle notifications to humans.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aristath/rebalancer/internal/domain"
)

var kindTitles = map[domain.NotificationKind]string{
	domain.NotifyStarted:             "Started",
	domain.NotifySucceeded:           "Succeeded",
	domain.NotifySucceededAfterRetry: "Succeeded after retry",
	domain.NotifyRetrying:            "Retrying",
	domain.NotifyDelayed:             "Delayed",
	domain.NotifyManualReview:        "Manual review required",
	domain.NotifyPartialExecution:    "PARTIAL EXECUTION - manual review required",
	domain.NotifyCritical:            "CRITICAL - permanently failed",
}

// maxOutput caps the command output embedded in a message
const maxOutput = 3000

// FormatMessage renders a notification as plain text
func FormatMessage(ev *domain.Event, kind domain.NotificationKind, extra map[string]interface{}) string {
	var b strings.Builder

	title, ok := kindTitles[kind]
	if !ok {
		title = string(kind)
	}
	if ev == nil {
		fmt.Fprintf(&b, "[%s]\n", title)
	} else {
		fmt.Fprintf(&b, "[%s] %s for %s\n", title, ev.Command, ev.AccountID)
		fmt.Fprintf(&b, "event %s, attempt %d\n", ev.ID, ev.Attempt())
	}

	output, _ := extra["output"].(string)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k != "output" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, extra[k])
	}

	if output != "" {
		if len(output) > maxOutput {
			output = truncate(output, maxOutput) + "\n... (truncated)"
		}
		b.WriteString("\n")
		b.WriteString(output)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
