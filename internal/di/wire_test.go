package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/domain"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		RedisAddr:            redisAddr,
		QueuePrefix:          "test",
		DequeueTimeout:       50 * time.Millisecond,
		RetryDelay:           time.Second,
		RetrySweepInterval:   time.Second,
		DelayedSweepInterval: time.Second,
		Workers:              2,
		MaxAttempts:          3,
		SellConfirmTimeout:   time.Second,
		DataDir:              dir,
		AllocationDB:         filepath.Join(dir, "allocations.db"),
		MarketExchange:       "NYSE",
		MOCWindow:            15 * time.Minute,
		MarketOpenDelay:      5 * time.Minute,
		PaperCash:            10000,
		PaperPrices:          map[string]float64{"SPY": 400},
	}
}

func TestWire(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, container.Close(context.Background()))
	})

	assert.NotNil(t, container.AllocationDB)
	assert.NotNil(t, container.AllocRepo)
	assert.NotNil(t, container.Queue)
	assert.NotNil(t, container.Broker)
	assert.NotNil(t, container.Notifier)
	assert.NotNil(t, container.Processor)
	assert.NotNil(t, container.Scheduler)

	assert.Empty(t, container.Registry.Missing())
	assert.Equal(t, "XNYS", container.MarketHours.Exchange())
	assert.Equal(t, "test:active", container.Queue.Keys().Active)
}

func TestWire_QueueUsesAccountDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close(context.Background()) })

	ctx := context.Background()
	require.NoError(t, container.AllocRepo.UpsertAccount(ctx, domain.AccountContext{
		AccountID:    "U1",
		StrategyName: "core",
	}))

	// A dedup key without a recovery record is rebuilt from the stored defaults
	keys := container.Queue.Keys()
	mr.SAdd(keys.Dedup, domain.DedupKey("U1", domain.CommandRebalance))

	report, err := container.Queue.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.DedupKey("U1", domain.CommandRebalance)}, report.Recovered)

	ev, err := container.Queue.Dequeue(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "core", ev.Payload.String(domain.PayloadStrategy))
	assert.True(t, ev.Recovered)
}

func TestWire_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	mr.Close()

	_, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
