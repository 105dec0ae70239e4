// Package market_hours provides exchange calendars and the trading-hours policy
// that gates live rebalances.
package market_hours

import "time"

// TradingHours represents regular trading hours for an exchange
type TradingHours struct {
	OpenHour    int // Hour (0-23)
	OpenMinute  int // Minute (0-59)
	CloseHour   int // Hour (0-23)
	CloseMinute int // Minute (0-59)
}

// EarlyCloseRule closes the session early on the days DatePattern matches
type EarlyCloseRule struct {
	Name        string
	CloseHour   int
	CloseMinute int
	DatePattern func(time.Time) bool
}

// HolidayRuleSet defines holidays for an exchange
type HolidayRuleSet struct {
	FixedDateHolidays   []FixedDateHoliday
	RuleBasedHolidays   []RuleBasedHoliday
	EasterBasedHolidays []EasterBasedHoliday
}

// FixedDateHoliday represents a holiday on a fixed date
type FixedDateHoliday struct {
	Month int // 1-12
	Day   int // 1-31
	// If true, observe on nearest weekday if falls on weekend
	ObserveOnWeekday bool
}

// RuleBasedHoliday represents a holiday calculated by rule
type RuleBasedHoliday struct {
	Month   int          // 1-12
	Weekday time.Weekday // Monday, Tuesday, etc.
	N       int          // Nth occurrence (1 = first, -1 = last)
}

// EasterBasedHoliday represents a holiday relative to (Gregorian) Easter
type EasterBasedHoliday struct {
	DaysOffset int
}

// ExchangeConfig represents configuration for a single exchange
type ExchangeConfig struct {
	Code            string
	Name            string
	TradingHours    TradingHours
	Timezone        *time.Location
	EarlyCloseRules []EarlyCloseRule
	HolidayRules    HolidayRuleSet
}

// MarketStatus represents the current status of a market
type MarketStatus struct {
	Open      bool   `json:"open"`
	Exchange  string `json:"exchange"`
	Timezone  string `json:"timezone"`
	ClosesAt  string `json:"closes_at,omitempty"`
	OpensAt   string `json:"opens_at,omitempty"`
	OpensDate string `json:"opens_date,omitempty"`
}
