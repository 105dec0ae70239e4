// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExecCommand identifies the work an event asks for
type ExecCommand string

const (
	CommandRebalance      ExecCommand = "rebalance"
	CommandPrintRebalance ExecCommand = "print-rebalance"
	CommandPrintPositions ExecCommand = "print-positions"
	CommandPrintEquity    ExecCommand = "print-equity"
	CommandPrintOrders    ExecCommand = "print-orders"
	CommandCancelOrders   ExecCommand = "cancel-orders"
	CommandHealth         ExecCommand = "health"
)

// AllCommands lists every known command in a stable order
func AllCommands() []ExecCommand {
	return []ExecCommand{
		CommandRebalance,
		CommandPrintRebalance,
		CommandPrintPositions,
		CommandPrintEquity,
		CommandPrintOrders,
		CommandCancelOrders,
		CommandHealth,
	}
}

// ParseCommand validates a raw command string
func ParseCommand(raw string) (ExecCommand, error) {
	cmd := ExecCommand(strings.TrimSpace(strings.ToLower(raw)))
	for _, known := range AllCommands() {
		if cmd == known {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", raw)
}

// RequiresStrategy reports whether the command needs a strategy in its payload
func (c ExecCommand) RequiresStrategy() bool {
	return c == CommandRebalance || c == CommandPrintRebalance
}

// Payload keys understood by the commands
const (
	PayloadStrategy           = "strategy"
	PayloadCashReservePercent = "cash_reserve_percent"
	PayloadReplacementSet     = "replacement_set"
)

// Payload is the opaque key/value bag carried by an event
type Payload map[string]interface{}

// String returns the value under key as a string ("" when absent)
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Float returns the value under key as a float64.
// The second return value is false when the key is absent.
func (p Payload) Float(key string) (float64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch t := v.(type) {
	case float64:
		return t, true, nil
	case float32:
		return float64(t), true, nil
	case int:
		return float64(t), true, nil
	case int8:
		return float64(t), true, nil
	case int16:
		return float64(t), true, nil
	case int32:
		return float64(t), true, nil
	case int64:
		return float64(t), true, nil
	case uint:
		return float64(t), true, nil
	case uint8:
		return float64(t), true, nil
	case uint16:
		return float64(t), true, nil
	case uint32:
		return float64(t), true, nil
	case uint64:
		return float64(t), true, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// Clone returns a shallow copy of the payload
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Event is the unit of work moved through the durable queue
type Event struct {
	ID          string      `msgpack:"event_id" json:"event_id"`
	AccountID   string      `msgpack:"account_id" json:"account_id"`
	Command     ExecCommand `msgpack:"exec_command" json:"exec_command"`
	Payload     Payload     `msgpack:"payload" json:"payload"`
	TimesQueued int         `msgpack:"times_queued" json:"times_queued"`
	Retries     int         `msgpack:"retries,omitempty" json:"retries,omitempty"`
	CreatedAt   time.Time   `msgpack:"created_at" json:"created_at"`

	// Bookkeeping written by queue transitions
	LastError   string    `msgpack:"last_error,omitempty" json:"last_error,omitempty"`
	DelayReason string    `msgpack:"delay_reason,omitempty" json:"delay_reason,omitempty"`
	ExecuteAt   time.Time `msgpack:"execute_at,omitempty" json:"execute_at,omitempty"`
	Recovered   bool      `msgpack:"recovered,omitempty" json:"recovered,omitempty"`
}

// Attempt is the 1-based execution attempt. Deferrals re-queue an event
// without counting as an attempt.
func (e *Event) Attempt() int {
	return e.Retries + 1
}

// DedupKey builds the "account:command" key for an account and command
func DedupKey(accountID string, command ExecCommand) string {
	return accountID + ":" + string(command)
}

// ParseDedupKey splits a dedup key back into account and command.
// Account ids may themselves contain colons, so the command is taken from the last segment.
func ParseDedupKey(key string) (string, ExecCommand, error) {
	idx := strings.LastIndex(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("malformed dedup key %q", key)
	}
	cmd, err := ParseCommand(key[idx+1:])
	if err != nil {
		return "", "", err
	}
	return key[:idx], cmd, nil
}

// DedupKey returns the dedup key for this event
func (e *Event) DedupKey() string {
	return DedupKey(e.AccountID, e.Command)
}

// AccountContext carries per-event account settings
type AccountContext struct {
	AccountID          string  `json:"account_id"`
	StrategyName       string  `json:"strategy_name"`
	CashReservePercent float64 `json:"cash_reserve_percent"`
	ReplacementSet     string  `json:"replacement_set,omitempty"`
}

// ReserveFraction returns the cash reserve as a fraction of equity
func (a AccountContext) ReserveFraction() float64 {
	return a.CashReservePercent / 100
}

// Payload renders the context back into payload form
func (a AccountContext) Payload() Payload {
	p := Payload{
		PayloadStrategy:           a.StrategyName,
		PayloadCashReservePercent: a.CashReservePercent,
	}
	if a.ReplacementSet != "" {
		p[PayloadReplacementSet] = a.ReplacementSet
	}
	return p
}

// AccountContextFromEvent extracts the account context from an event payload
func AccountContextFromEvent(ev *Event) (AccountContext, error) {
	if ev == nil {
		return AccountContext{}, fmt.Errorf("%w: nil event", ErrInvalidPayload)
	}
	if strings.TrimSpace(ev.AccountID) == "" {
		return AccountContext{}, fmt.Errorf("%w: account id is required", ErrInvalidPayload)
	}

	ctx := AccountContext{
		AccountID:      ev.AccountID,
		StrategyName:   strings.TrimSpace(ev.Payload.String(PayloadStrategy)),
		ReplacementSet: strings.TrimSpace(ev.Payload.String(PayloadReplacementSet)),
	}

	reserve, ok, err := ev.Payload.Float(PayloadCashReservePercent)
	if err != nil {
		return AccountContext{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ok {
		if reserve < 0 || reserve > 100 {
			return AccountContext{}, fmt.Errorf("%w: cash reserve %.2f outside [0,100]", ErrInvalidPayload, reserve)
		}
		ctx.CashReservePercent = reserve
	}

	if ev.Command.RequiresStrategy() && ctx.StrategyName == "" {
		return AccountContext{}, fmt.Errorf("%w: %s requires a strategy", ErrInvalidPayload, ev.Command)
	}

	return ctx, nil
}

// Allocation is a target weight for one symbol
type Allocation struct {
	Symbol   string  `json:"symbol"`
	Fraction float64 `json:"fraction"`
}

// ReplacementRule substitutes one symbol for another with a scale factor
type ReplacementRule struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Scale  float64 `json:"scale"`
}

// ReplacementSet is a named group of replacement rules
type ReplacementSet struct {
	Name  string            `json:"name"`
	Rules []ReplacementRule `json:"rules"`
}

// Rule returns the rule for a source symbol, if any
func (s ReplacementSet) Rule(symbol string) (ReplacementRule, bool) {
	for _, r := range s.Rules {
		if r.Source == symbol {
			return r, true
		}
	}
	return ReplacementRule{}, false
}
