// Package governor wraps every outbound platform or backend call with
// quota accounting, cooldown tracking, and classified retry. The platform
// enforces both a short sliding window and a 30-day window; violating
// either degrades the whole session, so accounting is centralized here
// rather than duplicated at call sites.
package governor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"socialnerd/internal/logging"

	"github.com/RussellLuo/slidingwindow"
)

// Policy configures retry and quota behavior.
type Policy struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	Jitter              time.Duration
	CooldownOnRateLimit time.Duration

	WindowLimit  int
	WindowSize   time.Duration
	MonthlyLimit int
}

// DefaultPolicy returns conservative platform-friendly defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		BaseDelay:           500 * time.Millisecond,
		Jitter:              250 * time.Millisecond,
		CooldownOnRateLimit: 5 * time.Minute,
		WindowLimit:         50,
		WindowSize:          15 * time.Minute,
		MonthlyLimit:        3000,
	}
}

// QuotaState is the caller-visible accounting snapshot. Single-writer
// (the governor), read by status displays.
type QuotaState struct {
	WindowStart      time.Time
	RequestsInWindow int
	MonthlyCount     int
	LastRequestAt    time.Time
}

// Governor serializes quota decisions for one process-wide session.
type Governor struct {
	policy Policy

	mu            sync.Mutex
	window        *slidingwindow.Limiter
	monthly       *slidingwindow.Limiter
	cooldownUntil time.Time
	quota         QuotaState
	// attempts holds the timestamps still inside the short window; it
	// backs the RequestsInWindow snapshot. Admission bounds its length
	// at WindowLimit.
	attempts []time.Time
}

// New creates a governor with the given policy. Zero fields fall back to
// DefaultPolicy values.
func New(policy Policy) *Governor {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.CooldownOnRateLimit <= 0 {
		policy.CooldownOnRateLimit = def.CooldownOnRateLimit
	}
	if policy.WindowLimit <= 0 {
		policy.WindowLimit = def.WindowLimit
	}
	if policy.WindowSize <= 0 {
		policy.WindowSize = def.WindowSize
	}
	if policy.MonthlyLimit <= 0 {
		policy.MonthlyLimit = def.MonthlyLimit
	}

	return &Governor{
		policy:  policy,
		window:  newWindowLimiter(policy.WindowSize, int64(policy.WindowLimit)),
		monthly: newWindowLimiter(30*24*time.Hour, int64(policy.MonthlyLimit)),
	}
}

func newWindowLimiter(size time.Duration, count int64) *slidingwindow.Limiter {
	lim, _ := slidingwindow.NewLimiter(size, count, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	return lim
}

// Execute runs op under quota admission and classified retry.
//
// Admission is a non-blocking "available-at" check: if a cooldown is
// active or a window is exhausted, Execute fails fast with
// *RateLimitedError and never touches op. Transient failures retry up to
// MaxAttempts with exponential backoff plus jitter; rate-limited failures
// set a cooldown and fail the current call; auth and permanent failures
// return immediately.
func (g *Governor) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		if err := g.admit(); err != nil {
			logging.Governor("%s: admission denied: %v", name, err)
			return err
		}
		g.recordAttempt()

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class, retryAfter := Classify(err)
		switch class {
		case ClassTransient:
			if attempt == g.policy.MaxAttempts {
				logging.Governor("%s: attempts exhausted after %d tries: %v", name, attempt, err)
				return fmt.Errorf("%s: %d attempts exhausted: %w", name, attempt, lastErr)
			}
			delay := g.backoff(attempt)
			logging.GovernorDebug("%s: transient failure (attempt %d/%d), retrying in %s: %v",
				name, attempt, g.policy.MaxAttempts, delay, err)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}

		case ClassRateLimited:
			cooldown := retryAfter
			if cooldown <= 0 {
				cooldown = g.policy.CooldownOnRateLimit
			}
			g.setCooldown(cooldown)
			logging.Governor("%s: platform rate limit, cooling down for %s", name, cooldown)
			return &RateLimitedError{RetryAfter: cooldown}

		default: // ClassAuthFailure, ClassPermanent
			logging.Governor("%s: non-retryable failure: %v", name, err)
			return err
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}

// Quota returns a snapshot of the current accounting state. The window
// count slides with the same horizon admission uses.
func (g *Governor) Quota() QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(time.Now())
	return g.quota
}

// CooldownRemaining reports how long the active cooldown has left, zero
// when none is active.
func (g *Governor) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rem := time.Until(g.cooldownUntil); rem > 0 {
		return rem
	}
	return 0
}

func (g *Governor) admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Before(g.cooldownUntil) {
		return &RateLimitedError{RetryAfter: g.cooldownUntil.Sub(now)}
	}
	// Monthly is consulted first: a monthly refusal must not consume a
	// slot in the much scarcer short window.
	if !g.monthly.Allow() {
		return &RateLimitedError{RetryAfter: g.policy.CooldownOnRateLimit}
	}
	if !g.window.Allow() {
		retry := g.quota.WindowStart.Add(g.policy.WindowSize).Sub(now)
		if retry <= 0 {
			retry = g.policy.WindowSize
		}
		return &RateLimitedError{RetryAfter: retry}
	}
	return nil
}

func (g *Governor) recordAttempt() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.attempts = append(g.attempts, now)
	g.pruneLocked(now)
	g.quota.MonthlyCount++
	g.quota.LastRequestAt = now
}

// pruneLocked drops attempts that have slid out of the window and keeps
// the snapshot consistent with what admission will actually allow.
func (g *Governor) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.policy.WindowSize)
	i := 0
	for i < len(g.attempts) && !g.attempts[i].After(cutoff) {
		i++
	}
	g.attempts = g.attempts[i:]
	g.quota.RequestsInWindow = len(g.attempts)
	if len(g.attempts) > 0 {
		g.quota.WindowStart = g.attempts[0]
	} else {
		g.quota.WindowStart = time.Time{}
	}
}

func (g *Governor) setCooldown(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
}

func (g *Governor) backoff(attempt int) time.Duration {
	delay := g.policy.BaseDelay * time.Duration(1<<uint(attempt-1))
	if g.policy.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(g.policy.Jitter)))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RateLimitedError signals that a call was refused (or rejected by the
// platform) due to quota; recoverable by waiting RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsRateLimited reports whether err is (or wraps) a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
