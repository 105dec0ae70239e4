package market_hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMarketOpen_XNYS(t *testing.T) {
	service := NewMarketHoursService()

	tests := []struct {
		name     string
		datetime time.Time
		expected bool
	}{
		{"regular hours", time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC), true},       // Tue 10:00 EST
		{"before open", time.Date(2024, 1, 16, 13, 0, 0, 0, time.UTC), false},        // Tue 08:00 EST
		{"at open", time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC), true},            // Tue 09:30 EST
		{"at close", time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC), false},           // Tue 16:00 EST
		{"saturday", time.Date(2024, 1, 13, 15, 0, 0, 0, time.UTC), false},           // Sat
		{"MLK day", time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC), false},            // 3rd Monday of January
		{"good friday", time.Date(2024, 3, 29, 15, 0, 0, 0, time.UTC), false},        // Easter 2024-03-31
		{"independence day", time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC), false},    // Thu
		{"christmas observed", time.Date(2022, 12, 26, 15, 0, 0, 0, time.UTC), false}, // Dec 25 was a Sunday
		{"early close morning", time.Date(2024, 11, 27, 15, 0, 0, 0, time.UTC), true},
		{"early close afternoon", time.Date(2024, 11, 27, 19, 0, 0, 0, time.UTC), false}, // 14:00 EST
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, service.IsMarketOpen("XNYS", tt.datetime))
		})
	}
}

func TestCalculateEaster(t *testing.T) {
	tests := []struct {
		year     int
		expected time.Time
	}{
		{2024, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		{2025, time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)},
		{2026, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)},
		{2027, time.Date(2027, 3, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expected.Format("2006-01-02"), func(t *testing.T) {
			got := CalculateEaster(tt.year)
			assert.True(t, got.Equal(tt.expected), "got %s", got)
			assert.Equal(t, time.Sunday, got.Weekday())
		})
	}
}

func TestNextOpen(t *testing.T) {
	service := NewMarketHoursService()

	tests := []struct {
		name     string
		from     time.Time
		expected time.Time
	}{
		{"later today", time.Date(2024, 1, 16, 13, 0, 0, 0, time.UTC), time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)},
		{"over the weekend", time.Date(2024, 1, 19, 21, 30, 0, 0, time.UTC), time.Date(2024, 1, 22, 14, 30, 0, 0, time.UTC)},
		{"skips holiday monday", time.Date(2024, 1, 12, 21, 30, 0, 0, time.UTC), time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)},
		{"during session", time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC), time.Date(2024, 1, 17, 14, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := service.NextOpen("XNYS", tt.from)
			require.NotNil(t, next)
			assert.True(t, next.Equal(tt.expected), "got %s", next.UTC())
		})
	}
}

func TestGetExchangeCode(t *testing.T) {
	assert.Equal(t, "XNYS", GetExchangeCode("XNYS"))
	assert.Equal(t, "XNAS", GetExchangeCode("nasdaq"))
	assert.Equal(t, "XNAS", GetExchangeCode(" xnas "))
	assert.Equal(t, "XNYS", GetExchangeCode("LSE"))
}

func TestGetMarketStatus(t *testing.T) {
	service := NewMarketHoursService()

	open, err := service.GetMarketStatus("XNAS", time.Date(2024, 11, 27, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, open.Open)
	assert.Equal(t, "13:00", open.ClosesAt)

	closed, err := service.GetMarketStatus("XNAS", time.Date(2024, 1, 19, 21, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, closed.Open)
	assert.Equal(t, "09:30", closed.OpensAt)
	assert.Equal(t, "2024-01-22", closed.OpensDate)
}
