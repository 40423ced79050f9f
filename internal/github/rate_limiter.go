package github

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter paces API requests and tracks the core rate limit window.
type RateLimiter struct {
	mu              sync.Mutex
	lastRequestTime time.Time
	minInterval     time.Duration
	logger          *slog.Logger

	coreRemaining int
	coreLimit     int
	coreResetTime time.Time

	backoffDuration time.Duration
	maxBackoff      time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		minInterval:     100 * time.Millisecond,
		logger:          logger,
		backoffDuration: 1 * time.Second,
		maxBackoff:      5 * time.Minute,
		coreRemaining:   5000,
		coreLimit:       5000,
	}
}

// Wait blocks until it is safe to make another API request.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rl.mu.Lock()

	now := time.Now()
	if now.Before(rl.coreResetTime) && rl.coreRemaining <= 0 {
		waitDuration := time.Until(rl.coreResetTime)
		rl.logger.Warn("Rate limit exhausted, waiting for reset",
			"wait_duration", waitDuration,
			"reset_time", rl.coreResetTime)
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
		}

		rl.mu.Lock()
		rl.coreRemaining = rl.coreLimit
	}

	if since := time.Since(rl.lastRequestTime); since < rl.minInterval {
		waitTime := rl.minInterval - since
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}

		rl.mu.Lock()
	}

	rl.lastRequestTime = time.Now()
	rl.mu.Unlock()
	return nil
}

// UpdateLimits records rate limit information from a response.
func (rl *RateLimiter) UpdateLimits(remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.coreRemaining = remaining
	rl.coreLimit = limit
	rl.coreResetTime = resetTime

	if remaining < 100 {
		rl.logger.Warn("GitHub API rate limit running low",
			"remaining", remaining,
			"limit", limit,
			"reset_time", resetTime)
	}
}

// GetStatus returns the current rate limit status.
func (rl *RateLimiter) GetStatus() (remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.coreRemaining, rl.coreLimit, rl.coreResetTime
}

// StartBackoff waits for the current backoff duration and doubles it for next
// time, capped at maxBackoff.
func (rl *RateLimiter) StartBackoff(ctx context.Context) error {
	rl.mu.Lock()
	backoff := min(rl.backoffDuration, rl.maxBackoff)
	rl.backoffDuration = min(rl.backoffDuration*2, rl.maxBackoff)
	rl.mu.Unlock()

	rl.logger.Info("Backing off", "duration", backoff)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

// ResetBackoff resets the backoff duration after a successful request.
func (rl *RateLimiter) ResetBackoff() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.backoffDuration = 1 * time.Second
}

// HandleRateLimitError waits for the known reset time, falling back to
// exponential backoff when none is known.
func (rl *RateLimiter) HandleRateLimitError(ctx context.Context) error {
	rl.mu.Lock()
	resetTime := rl.coreResetTime
	rl.mu.Unlock()

	if time.Now().Before(resetTime) {
		waitDuration := time.Until(resetTime)
		rl.logger.Warn("Rate limit hit, waiting for reset",
			"wait_duration", waitDuration,
			"reset_time", resetTime)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
			rl.mu.Lock()
			rl.coreRemaining = rl.coreLimit
			rl.mu.Unlock()
			return nil
		}
	}

	return rl.StartBackoff(ctx)
}
