// Package guard gates chargeable and abuse-prone operations behind
// sliding-window rate limits, failed-login lockouts, and per-user credit
// ceilings. All decisions are made before any side effect: Check never
// records, and a denied check leaves no trace.
package guard

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	"go.uber.org/zap"
)

var (
	ErrRateLimited  = errors.New("rate_limited")
	ErrLocked       = errors.New("account_locked")
	ErrAbuseCeiling = errors.New("credit_abuse_ceiling")
)

// Decision is the outcome of a sliding-window check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Current   int       `json:"current"`
}

// Guard owns all anti-abuse state. Construct once at process start and
// inject into handlers; window state lives behind WindowStore, lockout and
// credit counters are process-local.
type Guard struct {
	log   *zap.Logger
	clock clock.Clock
	cfg   *config.GuardConfigHolder
	store WindowStore

	mu      sync.Mutex
	blocked map[string]time.Time

	abuse *creditProtection
}

func New(log *zap.Logger, clk clock.Clock, holder *config.GuardConfigHolder, store WindowStore) *Guard {
	g := &Guard{
		log:     log.Named("guard"),
		clock:   clk,
		cfg:     holder,
		store:   store,
		blocked: make(map[string]time.Time),
		abuse:   newCreditProtection(clk, holder),
	}
	g.log.Info("abuse guard initialised", zap.Bool("enabled", holder.Current().Enabled))
	return g
}

// Check reports whether one more request for action by identifier fits the
// configured window. It never records the request.
func (g *Guard) Check(ctx context.Context, action, identifier string) (Decision, error) {
	cfg := g.cfg.Current()
	if !cfg.Enabled {
		return Decision{Allowed: true, Remaining: 999}, nil
	}

	limit := g.limitFor(cfg, action)
	window := time.Duration(limit.WindowSeconds) * time.Second
	now := g.clock.Now()

	count, oldest, err := g.store.Count(ctx, windowKey(action, identifier), now.Add(-window))
	if err != nil {
		return Decision{}, err
	}

	resetAt := now.Add(window)
	if count > 0 {
		resetAt = oldest.Add(window)
	}

	remaining := limit.MaxRequests - count - 1
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count < limit.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
		Current:   count,
	}, nil
}

// Record counts one request for action by identifier.
func (g *Guard) Record(ctx context.Context, action, identifier string) error {
	cfg := g.cfg.Current()
	if !cfg.Enabled {
		return nil
	}
	limit := g.limitFor(cfg, action)
	ttl := time.Duration(limit.WindowSeconds) * time.Second
	return g.store.Append(ctx, windowKey(action, identifier), g.clock.Now(), ttl)
}

// Blocked reports whether identifier is under an active lockout. Must be
// consulted before any window check.
func (g *Guard) Blocked(identifier string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.blocked[identifier]
	if !ok {
		return false
	}
	if g.clock.Now().Before(until) {
		return true
	}
	delete(g.blocked, identifier)
	return false
}

// Block locks identifier out for the given duration, independent of any
// window state.
func (g *Guard) Block(identifier string, d time.Duration) {
	g.mu.Lock()
	g.blocked[identifier] = g.clock.Now().Add(d)
	g.mu.Unlock()
	g.log.Warn("identifier blocked",
		zap.String("identifier", truncateIdentifier(identifier)),
		zap.Duration("duration", d))
}

// RecordFailedLogin counts a failed attempt and escalates to a lockout once
// the login_failed window is exhausted. Returns false when the lockout fired.
func (g *Guard) RecordFailedLogin(ctx context.Context, identifier string) (bool, error) {
	decision, err := g.Check(ctx, ActionLoginFailed, identifier)
	if err != nil {
		return false, err
	}
	if err := g.Record(ctx, ActionLoginFailed, identifier); err != nil {
		return false, err
	}
	if !decision.Allowed {
		g.Block(identifier, time.Duration(g.cfg.Current().LockoutSeconds)*time.Second)
		return false, nil
	}
	return true, nil
}

// ClearFailedLogins resets the failed-login window after a successful login.
func (g *Guard) ClearFailedLogins(ctx context.Context, identifier string) error {
	return g.store.Clear(ctx, windowKey(ActionLoginFailed, identifier))
}

// CheckCreditAbuse reports whether userID may perform one more chargeable
// action under the daily-credit and hourly-generation ceilings.
func (g *Guard) CheckCreditAbuse(userID string) AbuseDecision {
	return g.abuse.check(userID)
}

// RecordCreditUsage counts credits consumed by userID against both ceilings.
func (g *Guard) RecordCreditUsage(userID string, credits int64) {
	g.abuse.record(userID, credits)
}

const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionLoginFailed   = "login_failed"
	ActionGenerate      = "generate"
	ActionAPIGlobal     = "api_global"
	ActionPasswordReset = "password_reset"
)

func (g *Guard) limitFor(cfg config.GuardConfig, action string) config.RateLimit {
	if limit, ok := cfg.RateLimits[action]; ok {
		return limit
	}
	return cfg.RateLimits[ActionAPIGlobal]
}

func windowKey(action, identifier string) string {
	sum := md5.Sum([]byte(identifier))
	return action + ":" + hex.EncodeToString(sum[:])[:16]
}

func truncateIdentifier(identifier string) string {
	if len(identifier) > 16 {
		return identifier[:16] + "..."
	}
	return identifier
}
