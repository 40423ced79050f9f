package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

const (
	// SecondaryRateLimitBackoff is how long to wait on a secondary rate
	// limit; GitHub only says "a few minutes".
	SecondaryRateLimitBackoff = 60 * time.Second

	// RateLimitResetBuffer is added to a parsed reset time so the window has
	// actually rolled over before the retry.
	RateLimitResetBuffer = 5 * time.Second

	// MinRateLimitWait and MaxRateLimitWait bound the wait for primary rate
	// limit errors.
	MinRateLimitWait = 10 * time.Second
	MaxRateLimitWait = 15 * time.Minute
)

// Retryer handles retry logic with exponential backoff.
type Retryer struct {
	config      RetryConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewRetryer creates a new retryer.
func NewRetryer(config RetryConfig, rateLimiter *RateLimiter, logger *slog.Logger) *Retryer {
	return &Retryer{
		config:      config,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

func (r *Retryer) calculateRateLimitWait(err error) time.Duration {
	resetTime, hasResetTime := ParseRateLimitResetTime(err)

	var waitDuration time.Duration
	if hasResetTime {
		waitDuration = time.Until(resetTime) + RateLimitResetBuffer
	} else {
		waitDuration = SecondaryRateLimitBackoff
	}

	if waitDuration < MinRateLimitWait {
		waitDuration = MinRateLimitWait
	}
	if waitDuration > MaxRateLimitWait {
		waitDuration = MaxRateLimitWait
	}
	return waitDuration
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// Do executes a function with retry logic.
func (r *Retryer) Do(ctx context.Context, operation string, fn RetryFunc) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := r.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			r.rateLimiter.ResetBackoff()
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt)
			}
			return nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			r.logger.Debug("Non-retryable error",
				"operation", operation,
				"attempt", attempt,
				"error", err)
			return err
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		switch {
		case IsRateLimitBlockedError(err):
			waitDuration := r.calculateRateLimitWait(err)
			r.logger.Warn("Rate limit blocked, waiting for reset",
				"operation", operation,
				"attempt", attempt,
				"wait_duration", waitDuration)
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during rate limit wait: %w", ctx.Err())
			case <-time.After(waitDuration):
			}

		case IsSecondaryRateLimitError(err):
			r.logger.Warn("Secondary rate limit hit, waiting before retry",
				"operation", operation,
				"attempt", attempt,
				"backoff", SecondaryRateLimitBackoff)
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during secondary rate limit wait: %w", ctx.Err())
			case <-time.After(SecondaryRateLimitBackoff):
			}

		case IsRateLimitError(err):
			r.logger.Warn("Rate limit error, waiting before retry",
				"operation", operation,
				"attempt", attempt)
			if err := r.rateLimiter.HandleRateLimitError(ctx); err != nil {
				return fmt.Errorf("rate limit handling failed: %w", err)
			}

		default:
			r.logger.Info("Retryable error, backing off",
				"operation", operation,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*r.config.BackoffMultiple), r.config.MaxBackoff)
			}
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w",
		operation, r.config.MaxAttempts, lastErr)
}

// DoWithRetry executes a function that returns a value with retry logic.
func DoWithRetry[T any](
	ctx context.Context,
	retryer *Retryer,
	operation string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	var lastErr error

	err := retryer.Do(ctx, operation, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		if err != nil {
			lastErr = err
			return err
		}
		return nil
	})

	if err != nil {
		return result, lastErr
	}
	return result, nil
}
