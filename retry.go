package vigil

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures backoff for export and upload operations.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the
	// first. Default: 3
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 10s
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff after each retry.
	// Default: 2.0
	BackoffMultiplier float64

	// Jitter in [0,1] randomizes each delay by ±Jitter. Default: 0.1
	Jitter float64

	// RetryIf filters retryable errors. Nil retries everything.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns sensible defaults for upload retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryIf:           IsRetryable,
	}
}

// Retryer runs operations with exponential backoff.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer, clamping invalid config to defaults.
func NewRetryer(config RetryConfig) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = 0.1
	}
	return &Retryer{config: config}
}

// Do runs op until it succeeds, exhausts the attempt budget, or the
// context is cancelled. The last error is returned.
func (r *Retryer) Do(ctx context.Context, op func() error) error {
	backoff := r.config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if r.config.RetryIf != nil && !r.config.RetryIf(lastErr) {
			return lastErr
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.addJitter(backoff)):
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}
	return lastErr
}

func (r *Retryer) addJitter(d time.Duration) time.Duration {
	if r.config.Jitter == 0 {
		return d
	}
	jitter := (rand.Float64()*2 - 1) * float64(d) * r.config.Jitter
	return time.Duration(float64(d) + jitter)
}

// IsRetryable reports whether an error looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Validation and config failures never heal on retry.
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidConfig) {
		return false
	}

	errStr := err.Error()
	patterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"503",
		"502",
		"504",
		"429",
	}
	for _, p := range patterns {
		if strings.Contains(strings.ToLower(errStr), p) {
			return true
		}
	}
	return false
}
