package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(" Rebalance ")
	require.NoError(t, err)
	assert.Equal(t, CommandRebalance, cmd)

	_, err = ParseCommand("liquidate-everything")
	assert.Error(t, err)
}

func TestDedupKey_RoundTrip(t *testing.T) {
	key := DedupKey("U1234", CommandCancelOrders)
	assert.Equal(t, "U1234:cancel-orders", key)

	account, cmd, err := ParseDedupKey(key)
	require.NoError(t, err)
	assert.Equal(t, "U1234", account)
	assert.Equal(t, CommandCancelOrders, cmd)
}

func TestParseDedupKey_AccountWithColon(t *testing.T) {
	account, cmd, err := ParseDedupKey("ibkr:U99:rebalance")
	require.NoError(t, err)
	assert.Equal(t, "ibkr:U99", account)
	assert.Equal(t, CommandRebalance, cmd)
}

func TestParseDedupKey_Malformed(t *testing.T) {
	for _, key := range []string{"", "nocolon", ":rebalance", "acct:", "acct:bogus"} {
		_, _, err := ParseDedupKey(key)
		assert.Error(t, err, key)
	}
}

func TestPayloadFloat_NumericKinds(t *testing.T) {
	p := Payload{
		"i8":    int8(5),
		"u8":    uint8(7),
		"f32":   float32(2.5),
		"str":   "12.5",
		"bad":   "abc",
		"empty": "",
	}

	v, ok, err := p.Float("i8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	v, _, _ = p.Float("u8")
	assert.Equal(t, 7.0, v)

	v, _, _ = p.Float("f32")
	assert.Equal(t, 2.5, v)

	v, _, _ = p.Float("str")
	assert.Equal(t, 12.5, v)

	_, ok, err = p.Float("bad")
	assert.True(t, ok)
	assert.Error(t, err)

	_, ok, err = p.Float("empty")
	assert.False(t, ok)
	assert.NoError(t, err)

	_, ok, _ = p.Float("missing")
	assert.False(t, ok)
}

func TestAccountContextFromEvent(t *testing.T) {
	ev := &Event{
		AccountID: "U1",
		Command:   CommandRebalance,
		Payload: Payload{
			PayloadStrategy:           "core-growth",
			PayloadCashReservePercent: "2.5",
			PayloadReplacementSet:     "ira",
		},
	}

	ctx, err := AccountContextFromEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "U1", ctx.AccountID)
	assert.Equal(t, "core-growth", ctx.StrategyName)
	assert.Equal(t, 2.5, ctx.CashReservePercent)
	assert.Equal(t, "ira", ctx.ReplacementSet)
	assert.InDelta(t, 0.025, ctx.ReserveFraction(), 1e-12)
}

func TestAccountContextFromEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		ev   *Event
	}{
		{"nil event", nil},
		{"missing account", &Event{Command: CommandHealth}},
		{"missing strategy", &Event{AccountID: "U1", Command: CommandRebalance, Payload: Payload{}}},
		{"reserve too high", &Event{AccountID: "U1", Command: CommandPrintEquity, Payload: Payload{PayloadCashReservePercent: 120.0}}},
		{"reserve negative", &Event{AccountID: "U1", Command: CommandPrintEquity, Payload: Payload{PayloadCashReservePercent: -1}}},
		{"reserve garbage", &Event{AccountID: "U1", Command: CommandPrintEquity, Payload: Payload{PayloadCashReservePercent: "lots"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AccountContextFromEvent(tt.ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
		})
	}
}

func TestAccountContextFromEvent_ReadOnlyCommandNeedsNoStrategy(t *testing.T) {
	ctx, err := AccountContextFromEvent(&Event{AccountID: "U1", Command: CommandPrintPositions})
	require.NoError(t, err)
	assert.Empty(t, ctx.StrategyName)
	assert.Zero(t, ctx.CashReservePercent)
}

func TestAccountContext_PayloadRoundTrip(t *testing.T) {
	in := AccountContext{AccountID: "U1", StrategyName: "s", CashReservePercent: 3, ReplacementSet: "r"}
	out, err := AccountContextFromEvent(&Event{AccountID: "U1", Command: CommandRebalance, Payload: in.Payload()})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRebalanceOrder_SignedQuantity(t *testing.T) {
	assert.Equal(t, int64(-4), RebalanceOrder{Action: ActionSell, Quantity: 4}.SignedQuantity())
	assert.Equal(t, int64(4), RebalanceOrder{Action: ActionBuy, Quantity: 4}.SignedQuantity())
}

func TestDeferredError_Message(t *testing.T) {
	next := time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)
	err := NewDeferredError("market closed", &next)
	assert.Contains(t, err.Error(), "2024-01-16T14:30:00Z")

	var deferred *DeferredError
	assert.True(t, errors.As(error(err), &deferred))

	assert.Contains(t, NewDeferredError("market closed", nil).Error(), "no next eligible time")
}
