package market_hours

import (
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo for minimal container images
)

// DefaultExchange is used when an unknown exchange is configured
const DefaultExchange = "XNYS"

var exchangeNameToCode = map[string]string{
	"NYSE":     "XNYS",
	"New York": "XNYS",
	"NASDAQ":   "XNAS",
	"NasdaqGS": "XNAS",
	"NasdaqCM": "XNAS",
}

// GetExchangeCode resolves an exchange name or code, defaulting to XNYS
func GetExchangeCode(name string) string {
	normalized := strings.TrimSpace(name)
	if _, ok := exchangeConfigs[normalized]; ok {
		return normalized
	}
	for alias, code := range exchangeNameToCode {
		if strings.EqualFold(normalized, alias) {
			return code
		}
	}
	if _, ok := exchangeConfigs[strings.ToUpper(normalized)]; ok {
		return strings.ToUpper(normalized)
	}
	return DefaultExchange
}

func getExchangeConfig(code string) *ExchangeConfig {
	if config, ok := exchangeConfigs[code]; ok {
		return &config
	}
	config := exchangeConfigs[DefaultExchange]
	return &config
}

// usEquityCalendar returns the shared NYSE/NASDAQ session and holiday rules
func usEquityCalendar(code, name string) ExchangeConfig {
	return ExchangeConfig{
		Code: code,
		Name: name,
		TradingHours: TradingHours{
			OpenHour:    9,
			OpenMinute:  30,
			CloseHour:   16,
			CloseMinute: 0,
		},
		Timezone: mustLoadLocation("America/New_York"),
		EarlyCloseRules: []EarlyCloseRule{
			{
				Name:        "Day before Thanksgiving",
				CloseHour:   13,
				CloseMinute: 0,
				DatePattern: func(t time.Time) bool {
					thanksgiving := findNthWeekday(t.Year(), 11, time.Thursday, 4)
					return sameDay(t, thanksgiving.AddDate(0, 0, -1))
				},
			},
			{
				Name:        "Christmas Eve",
				CloseHour:   13,
				CloseMinute: 0,
				DatePattern: func(t time.Time) bool {
					return t.Month() == 12 && t.Day() == 24
				},
			},
			{
				Name:        "Independence Day eve",
				CloseHour:   13,
				CloseMinute: 0,
				DatePattern: func(t time.Time) bool {
					if t.Month() != 7 || t.Day() != 3 {
						return false
					}
					return time.Date(t.Year(), 7, 4, 0, 0, 0, 0, t.Location()).Weekday() == time.Friday
				},
			},
		},
		HolidayRules: HolidayRuleSet{
			FixedDateHolidays: []FixedDateHoliday{
				{Month: 1, Day: 1, ObserveOnWeekday: true},   // New Year's Day
				{Month: 6, Day: 19, ObserveOnWeekday: true},  // Juneteenth
				{Month: 7, Day: 4, ObserveOnWeekday: true},   // Independence Day
				{Month: 12, Day: 25, ObserveOnWeekday: true}, // Christmas
			},
			RuleBasedHolidays: []RuleBasedHoliday{
				{Month: 1, Weekday: time.Monday, N: 3},    // MLK Day
				{Month: 2, Weekday: time.Monday, N: 3},    // Presidents Day
				{Month: 5, Weekday: time.Monday, N: -1},   // Memorial Day
				{Month: 9, Weekday: time.Monday, N: 1},    // Labor Day
				{Month: 11, Weekday: time.Thursday, N: 4}, // Thanksgiving
			},
			EasterBasedHolidays: []EasterBasedHoliday{
				{DaysOffset: -2}, // Good Friday
			},
		},
	}
}

var exchangeConfigs = map[string]ExchangeConfig{
	"XNYS": usEquityCalendar("XNYS", "New York Stock Exchange"),
	"XNAS": usEquityCalendar("XNAS", "NASDAQ"),
}

// mustLoadLocation loads a timezone location, panicking if it fails
func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("failed to load timezone: " + name + ": " + err.Error())
	}
	return loc
}
