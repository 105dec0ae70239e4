package market_hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func policyAt(now time.Time) *Policy {
	return NewPolicy(NewMarketHoursService(), PolicyConfig{
		Exchange:  "NYSE",
		MOCWindow: 15 * time.Minute,
		OpenDelay: 5 * time.Minute,
	}).WithClock(func() time.Time { return now })
}

func TestPolicy_IsOpen(t *testing.T) {
	assert.True(t, policyAt(time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)).IsOpen())
	assert.False(t, policyAt(time.Date(2024, 1, 13, 15, 0, 0, 0, time.UTC)).IsOpen())
	assert.Equal(t, "XNYS", policyAt(time.Now()).Exchange())
}

func TestPolicy_OrderTypeNow(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected domain.OrderType
	}{
		{"mid session", time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC), domain.OrderTypeMarket},
		{"twenty minutes before close", time.Date(2024, 1, 16, 20, 40, 0, 0, time.UTC), domain.OrderTypeMarket},
		{"ten minutes before close", time.Date(2024, 1, 16, 20, 50, 0, 0, time.UTC), domain.OrderTypeMarketOnClose},
		{"before early close", time.Date(2024, 11, 27, 17, 50, 0, 0, time.UTC), domain.OrderTypeMarketOnClose},
		{"closed", time.Date(2024, 1, 16, 22, 0, 0, 0, time.UTC), domain.OrderTypeMarket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policyAt(tt.now).OrderTypeNow())
		})
	}
}

func TestPolicy_OrderTypeNowWithoutWindow(t *testing.T) {
	p := NewPolicy(nil, PolicyConfig{Exchange: "XNYS"}).
		WithClock(func() time.Time { return time.Date(2024, 1, 16, 20, 55, 0, 0, time.UTC) })
	assert.Equal(t, domain.OrderTypeMarket, p.OrderTypeNow())
}

func TestPolicy_NextEligibleStart(t *testing.T) {
	next := policyAt(time.Date(2024, 1, 19, 21, 30, 0, 0, time.UTC)).NextEligibleStart()
	require.NotNil(t, next)
	assert.True(t, next.Equal(time.Date(2024, 1, 22, 14, 35, 0, 0, time.UTC)), "got %s", next)
}

func TestPolicy_SatisfiesMarketHours(t *testing.T) {
	var _ domain.MarketHours = policyAt(time.Now())
}

func TestPolicy_Status(t *testing.T) {
	status, err := policyAt(time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)).Status()
	require.NoError(t, err)
	assert.True(t, status.Open)
	assert.Equal(t, "16:00", status.ClosesAt)

	status, err = policyAt(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)).Status()
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, "09:30", status.OpensAt)
	assert.Equal(t, "2024-01-16", status.OpensDate)
}

func TestPolicy_IsHoliday(t *testing.T) {
	assert.True(t, policyAt(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)).IsHoliday())
	assert.False(t, policyAt(time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)).IsHoliday())
	assert.False(t, policyAt(time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC)).IsHoliday(), "weekends are not holidays")
}
