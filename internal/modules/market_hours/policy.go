package market_hours

import (
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// PolicyConfig tunes the trading-hours policy
type PolicyConfig struct {
	Exchange string
	// MOCWindow switches orders to market-on-close this long before the close
	MOCWindow time.Duration
	// OpenDelay pushes deferred work past the opening auction
	OpenDelay time.Duration
}

// Policy implements domain.MarketHours on top of an exchange calendar
type Policy struct {
	service *MarketHoursService
	cfg     PolicyConfig
	now     func() time.Time
}

// NewPolicy creates a trading-hours policy for one exchange
func NewPolicy(service *MarketHoursService, cfg PolicyConfig) *Policy {
	if service == nil {
		service = NewMarketHoursService()
	}
	cfg.Exchange = GetExchangeCode(cfg.Exchange)
	return &Policy{service: service, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Exchange returns the resolved exchange code
func (p *Policy) Exchange() string {
	return p.cfg.Exchange
}

// IsOpen reports whether the exchange is in its regular session
func (p *Policy) IsOpen() bool {
	return p.service.IsMarketOpen(p.cfg.Exchange, p.now())
}

// OrderTypeNow returns MOC inside the window before the close and MKT otherwise
func (p *Policy) OrderTypeNow() domain.OrderType {
	if p.cfg.MOCWindow <= 0 {
		return domain.OrderTypeMarket
	}
	now := p.now()
	if !p.service.IsMarketOpen(p.cfg.Exchange, now) {
		return domain.OrderTypeMarket
	}
	closeAt, ok := p.service.CloseTime(p.cfg.Exchange, now)
	if ok && closeAt.Sub(now) <= p.cfg.MOCWindow {
		return domain.OrderTypeMarketOnClose
	}
	return domain.OrderTypeMarket
}

// NextEligibleStart returns the next session open plus the open delay, in UTC
func (p *Policy) NextEligibleStart() *time.Time {
	next := p.service.NextOpen(p.cfg.Exchange, p.now())
	if next == nil {
		return nil
	}
	at := next.Add(p.cfg.OpenDelay).UTC()
	return &at
}

// IsHoliday reports whether today is an exchange holiday
func (p *Policy) IsHoliday() bool {
	return p.service.IsHoliday(p.cfg.Exchange, p.now())
}

// Status reports the current market status
func (p *Policy) Status() (*MarketStatus, error) {
	return p.service.GetMarketStatus(p.cfg.Exchange, p.now())
}
