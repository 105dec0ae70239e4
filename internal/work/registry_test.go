package work

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func noop(context.Context, Request, Capabilities) Result { return Succeeded("") }

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Count())
	assert.Len(t, r.Missing(), len(domain.AllCommands()))
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(CommandFunc{Command: domain.CommandHealth, Fn: noop}))

	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get(domain.CommandHealth))
	assert.Nil(t, r.Get(domain.CommandRebalance))
	assert.NotContains(t, r.Missing(), domain.CommandHealth)
}

func TestRegistry_RejectsUnknownKind(t *testing.T) {
	r := NewRegistry()

	err := r.Register(CommandFunc{Command: "liquidate", Fn: noop})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(CommandFunc{Command: domain.CommandHealth, Fn: noop}))
	require.NoError(t, r.Register(CommandFunc{Command: domain.CommandHealth, Fn: func(context.Context, Request, Capabilities) Result {
		return Succeeded("second")
	}}))

	assert.Equal(t, 1, r.Count())
	res := r.Get(domain.CommandHealth).Execute(context.Background(), Request{}, Capabilities{})
	assert.Equal(t, "second", res.Output)
}

func TestRegistry_Kinds(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(CommandFunc{Command: domain.CommandRebalance, Fn: noop}))
	require.NoError(t, r.Register(CommandFunc{Command: domain.CommandCancelOrders, Fn: noop}))

	assert.Equal(t, []domain.ExecCommand{domain.CommandCancelOrders, domain.CommandRebalance}, r.Kinds())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for _, kind := range domain.AllCommands() {
		wg.Add(2)
		go func(kind domain.ExecCommand) {
			defer wg.Done()
			_ = r.Register(CommandFunc{Command: kind, Fn: noop})
		}(kind)
		go func(kind domain.ExecCommand) {
			defer wg.Done()
			_ = r.Get(kind)
		}(kind)
	}
	wg.Wait()

	assert.Equal(t, len(domain.AllCommands()), r.Count())
	assert.Empty(t, r.Missing())
}
