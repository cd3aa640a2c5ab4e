package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  int           // Total attempts including the first one
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Exponential backoff multiplier
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn until it succeeds, attempts run out or ctx is done.
func Retry(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(Delay(cfg, attempt)):
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}

// Delay returns the backoff before attempt+1.
func Delay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
