package guard

import (
	"sync"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
)

// AbuseDecision reports which ceiling (if any) blocks a chargeable action
// plus the remaining allowance under each.
type AbuseDecision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	DailyRemaining  int64  `json:"daily_remaining"`
	HourlyRemaining int64  `json:"hourly_remaining"`
}

const (
	ReasonDailyCeiling  = "daily_credit_ceiling"
	ReasonHourlyCeiling = "hourly_generation_ceiling"
)

type usageWindow struct {
	count  int64
	period string
}

// creditProtection tracks two independent per-user ceilings: credits spent
// per calendar day and generations per calendar hour. Each rolls over at its
// own boundary.
type creditProtection struct {
	clock clock.Clock
	cfg   *config.GuardConfigHolder

	mu     sync.Mutex
	daily  map[string]*usageWindow
	hourly map[string]*usageWindow
}

func newCreditProtection(clk clock.Clock, holder *config.GuardConfigHolder) *creditProtection {
	return &creditProtection{
		clock:  clk,
		cfg:    holder,
		daily:  make(map[string]*usageWindow),
		hourly: make(map[string]*usageWindow),
	}
}

func (p *creditProtection) check(userID string) AbuseDecision {
	cfg := p.cfg.Current()

	p.mu.Lock()
	defer p.mu.Unlock()

	daily := p.counter(p.daily, userID, p.dayKey())
	hourly := p.counter(p.hourly, userID, p.hourKey())

	if daily.count >= cfg.MaxCreditsPerDay {
		return AbuseDecision{
			Allowed:         false,
			Reason:          ReasonDailyCeiling,
			DailyRemaining:  0,
			HourlyRemaining: remaining(cfg.MaxGenerationsPerHour, hourly.count),
		}
	}
	if hourly.count >= cfg.MaxGenerationsPerHour {
		return AbuseDecision{
			Allowed:         false,
			Reason:          ReasonHourlyCeiling,
			DailyRemaining:  remaining(cfg.MaxCreditsPerDay, daily.count),
			HourlyRemaining: 0,
		}
	}

	return AbuseDecision{
		Allowed:         true,
		DailyRemaining:  remaining(cfg.MaxCreditsPerDay, daily.count+1),
		HourlyRemaining: remaining(cfg.MaxGenerationsPerHour, hourly.count+1),
	}
}

func (p *creditProtection) record(userID string, credits int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counter(p.daily, userID, p.dayKey()).count += credits
	p.counter(p.hourly, userID, p.hourKey()).count += credits
}

// counter returns the user's window, resetting it when the period boundary
// has rolled over since the last touch.
func (p *creditProtection) counter(windows map[string]*usageWindow, userID, period string) *usageWindow {
	w, ok := windows[userID]
	if !ok || w.period != period {
		w = &usageWindow{period: period}
		windows[userID] = w
	}
	return w
}

func (p *creditProtection) dayKey() string {
	return p.clock.Now().Format("2006-01-02")
}

func (p *creditProtection) hourKey() string {
	return p.clock.Now().Format("2006-01-02-15")
}

func remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}
