package market_hours

import (
	"fmt"
	"sync"
	"time"
)

// maxSessionSearchDays bounds the search for the next trading session
const maxSessionSearchDays = 7

// MarketHoursService answers calendar questions for the configured exchanges
type MarketHoursService struct {
	mu           sync.Mutex
	holidayCache map[string][]time.Time // keyed by exchange code and year
}

// NewMarketHoursService creates a new market hours service
func NewMarketHoursService() *MarketHoursService {
	return &MarketHoursService{
		holidayCache: make(map[string][]time.Time),
	}
}

// IsMarketOpen checks if a market is open for trading at t
func (s *MarketHoursService) IsMarketOpen(exchangeName string, t time.Time) bool {
	config := getExchangeConfig(GetExchangeCode(exchangeName))
	marketTime := t.In(config.Timezone)

	if !s.isTradingDay(config, marketTime) {
		return false
	}

	openTime := s.openTime(config, marketTime)
	closeTime := s.closeTime(config, marketTime)
	return !marketTime.Before(openTime) && marketTime.Before(closeTime)
}

// CloseTime returns today's close for the exchange (early close aware).
// The second return value is false on non-trading days.
func (s *MarketHoursService) CloseTime(exchangeName string, t time.Time) (time.Time, bool) {
	config := getExchangeConfig(GetExchangeCode(exchangeName))
	marketTime := t.In(config.Timezone)
	if !s.isTradingDay(config, marketTime) {
		return time.Time{}, false
	}
	return s.closeTime(config, marketTime), true
}

// NextOpen returns the next session open strictly after t, or nil when none is
// found within a week
func (s *MarketHoursService) NextOpen(exchangeName string, t time.Time) *time.Time {
	config := getExchangeConfig(GetExchangeCode(exchangeName))
	return s.findNextTradingSession(config, t.In(config.Timezone))
}

// IsHoliday reports whether the date of t (in exchange time) is a holiday
func (s *MarketHoursService) IsHoliday(exchangeName string, t time.Time) bool {
	config := getExchangeConfig(GetExchangeCode(exchangeName))
	return s.isHoliday(config, t.In(config.Timezone))
}

// GetMarketStatus returns detailed status for a market
func (s *MarketHoursService) GetMarketStatus(exchangeName string, t time.Time) (*MarketStatus, error) {
	code := GetExchangeCode(exchangeName)
	config, ok := exchangeConfigs[code]
	if !ok {
		return nil, fmt.Errorf("exchange not found: %s", exchangeName)
	}

	marketTime := t.In(config.Timezone)
	status := &MarketStatus{
		Open:     s.IsMarketOpen(code, t),
		Exchange: code,
		Timezone: config.Timezone.String(),
	}

	if status.Open {
		status.ClosesAt = s.closeTime(&config, marketTime).Format("15:04")
		return status, nil
	}

	if next := s.findNextTradingSession(&config, marketTime); next != nil {
		status.OpensAt = next.Format("15:04")
		if !sameDay(*next, marketTime) {
			status.OpensDate = next.Format("2006-01-02")
		}
	}
	return status, nil
}

func (s *MarketHoursService) isTradingDay(config *ExchangeConfig, marketTime time.Time) bool {
	return !isWeekend(marketTime) && !s.isHoliday(config, marketTime)
}

func (s *MarketHoursService) openTime(config *ExchangeConfig, marketTime time.Time) time.Time {
	return time.Date(marketTime.Year(), marketTime.Month(), marketTime.Day(),
		config.TradingHours.OpenHour, config.TradingHours.OpenMinute, 0, 0, config.Timezone)
}

func (s *MarketHoursService) closeTime(config *ExchangeConfig, marketTime time.Time) time.Time {
	for _, rule := range config.EarlyCloseRules {
		if rule.DatePattern != nil && rule.DatePattern(marketTime) {
			return time.Date(marketTime.Year(), marketTime.Month(), marketTime.Day(),
				rule.CloseHour, rule.CloseMinute, 0, 0, config.Timezone)
		}
	}
	return time.Date(marketTime.Year(), marketTime.Month(), marketTime.Day(),
		config.TradingHours.CloseHour, config.TradingHours.CloseMinute, 0, 0, config.Timezone)
}

// isHoliday checks if a date is a holiday for the given exchange
func (s *MarketHoursService) isHoliday(config *ExchangeConfig, date time.Time) bool {
	for _, holiday := range s.getHolidaysForYear(config, date.Year()) {
		if sameDay(holiday, date) {
			return true
		}
	}
	return false
}

// getHolidaysForYear calculates all holidays for a given year and exchange
func (s *MarketHoursService) getHolidaysForYear(config *ExchangeConfig, year int) []time.Time {
	key := fmt.Sprintf("%s:%d", config.Code, year)

	s.mu.Lock()
	defer s.mu.Unlock()
	if holidays, ok := s.holidayCache[key]; ok {
		return holidays
	}

	holidays := make([]time.Time, 0, 10)
	for _, h := range config.HolidayRules.FixedDateHolidays {
		date := time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
		if h.ObserveOnWeekday {
			date = observeOnWeekday(date)
		}
		holidays = append(holidays, date)
	}
	for _, h := range config.HolidayRules.RuleBasedHolidays {
		if h.N == -1 {
			holidays = append(holidays, findLastWeekday(year, h.Month, h.Weekday))
		} else {
			holidays = append(holidays, findNthWeekday(year, h.Month, h.Weekday, h.N))
		}
	}
	easter := CalculateEaster(year)
	for _, h := range config.HolidayRules.EasterBasedHolidays {
		holidays = append(holidays, easter.AddDate(0, 0, h.DaysOffset))
	}

	s.holidayCache[key] = holidays
	return holidays
}

// findNextTradingSession finds the next open strictly after currentTime
func (s *MarketHoursService) findNextTradingSession(config *ExchangeConfig, currentTime time.Time) *time.Time {
	for i := 0; i <= maxSessionSearchDays; i++ {
		day := currentTime.AddDate(0, 0, i)
		if !s.isTradingDay(config, day) {
			continue
		}
		open := s.openTime(config, day)
		if open.After(currentTime) {
			return &open
		}
	}
	return nil
}
