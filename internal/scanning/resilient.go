package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ResilienceConfig tunes retries and the circuit breaker around a Scanner
type ResilienceConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BreakerFailures is the number of consecutive failed pages that opens the breaker
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// RequestsPerSecond caps model calls across all pages; zero disables the limit
	RequestsPerSecond float64
	Burst             int
}

// DefaultResilienceConfig returns conservative defaults for remote model APIs
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxAttempts:     3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Resilient wraps a Scanner with a rate limit, retries and a circuit breaker
type Resilient struct {
	next    Scanner
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
}

// NewResilient creates a Resilient scanner around next
func NewResilient(next Scanner, name string, cfg ResilienceConfig) *Resilient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Scanner circuit breaker state change", "scanner", name, "from", from.String(), "to", to.String())
		},
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Resilient{
		next:    next,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		limiter: limiter,
	}
}

// ScanPage scans a page, retrying temporary failures
func (r *Resilient) ScanPage(ctx context.Context, image []byte) (string, error) {
	return r.breaker.Execute(func() (string, error) {
		return r.scanWithRetry(ctx, image)
	})
}

func (r *Resilient) scanWithRetry(ctx context.Context, image []byte) (string, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}

		text, err := r.next.ScanPage(ctx, image)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(err) || attempt == r.cfg.MaxAttempts {
			break
		}

		slog.Warn("Retrying page scan",
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"backoff", backoff,
			"error", err,
		)
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	return "", lastErr
}

// Close closes the wrapped scanner
func (r *Resilient) Close() error {
	return r.next.Close()
}

// IsCircuitOpen reports whether err came from an open breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
