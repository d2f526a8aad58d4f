// internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	apperrors "commit-tracker/internal/errors"
)

// Config controls throttling and retry behaviour.
type Config struct {
	// RequestInterval is the minimum delay between outbound calls.
	RequestInterval time.Duration
	// MaxAttempts is the total number of tries per call, including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RequestInterval: 100 * time.Millisecond,
		MaxAttempts:     3,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      30 * time.Second,
	}
}

// Gateway funnels every outbound host call through a single process-wide
// queue: one call in flight at a time, a minimum delay after each call
// before the next is released, and transparent retries for transient
// failures. All call sites share one Gateway so the host's rate budget
// is respected globally, not per sync task.
type Gateway struct {
	cfg     Config
	sem     chan struct{}
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Gateway. Zero config fields fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Gateway {
	def := DefaultConfig()
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = def.RequestInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Gateway{
		cfg:     cfg,
		sem:     make(chan struct{}, 1),
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		logger:  logger,
	}
}

// Do executes call under the gateway's admission queue and retry policy.
// The caller receives either a nil error after a successful attempt or
// the last classified error once the attempt budget is exhausted.
// Not-found and malformed errors are never retried.
func (g *Gateway) Do(ctx context.Context, op string, call func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff
	b.Multiplier = 2
	b.MaxInterval = g.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := g.admit(ctx); err != nil {
			return err
		}
		err := call(ctx)
		g.release(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var delay time.Duration
		var rl *apperrors.RateLimitError
		switch {
		case errors.As(err, &rl) && !rl.ResetAt.IsZero():
			// The host told us exactly when the quota refills; sleep
			// until then and leave the backoff schedule untouched.
			delay = time.Until(rl.ResetAt)
			if delay < 0 {
				delay = 0
			}
		case apperrors.IsRateLimit(err) || apperrors.IsTransient(err):
			delay = b.NextBackOff()
		default:
			// Not-found, malformed, or unclassified: propagate as-is.
			return err
		}

		if attempt == g.cfg.MaxAttempts {
			break
		}
		g.logger.Warn("Retrying host call",
			"op", op, "attempt", attempt, "delay", delay.String(), "error", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// admit blocks until this caller holds the single in-flight slot.
func (g *Gateway) admit(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release paces out the minimum inter-request delay before handing the
// slot to the next queued caller. The slot is always given back, even
// when the pacing wait is cut short by cancellation.
func (g *Gateway) release(ctx context.Context) {
	_ = g.limiter.Wait(ctx)
	<-g.sem
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
