package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// WithRateLimit gates every call on a token bucket shared by all callers of
// the returned Model. rps <= 0 disables limiting.
func WithRateLimit(m Model, rps float64, burst int) Model {
	if rps <= 0 {
		return m
	}
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		if err := lim.Wait(ctx); err != nil {
			return "", err
		}
		return m.Generate(ctx, instruction, images)
	})
}

// RetryConfig controls WithRetry.
type RetryConfig struct {
	Attempts       int           // total attempts, minimum 1
	InitialBackoff time.Duration // doubled after each failure
	MaxBackoff     time.Duration
	Timeout        time.Duration // per attempt; 0 means none
}

// WithRetry retries failed calls with exponential backoff. Context
// cancellation from the caller is never retried.
func WithRetry(m Model, cfg RetryConfig, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return ModelFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		rid := uuid.NewString()
		backoff := cfg.InitialBackoff
		var lastErr error
		for attempt := 1; attempt <= cfg.Attempts; attempt++ {
			start := time.Now()
			out, err := generateOnce(ctx, m, cfg.Timeout, instruction, images)
			if err == nil {
				if attempt > 1 {
					logger.Info("llm.retry.ok", "req_id", rid, "attempt", attempt, "elapsed_ms", time.Since(start).Milliseconds())
				}
				return out, nil
			}
			lastErr = err
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return "", err
			}
			if attempt == cfg.Attempts {
				break
			}
			logger.Warn("llm.retry.backoff",
				"req_id", rid,
				"attempt", attempt,
				"backoff_ms", backoff.Milliseconds(),
				"error", err,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
		logger.Error("llm.retry.exhausted", "req_id", rid, "attempts", cfg.Attempts, "error", lastErr)
		return "", lastErr
	})
}

func generateOnce(ctx context.Context, m Model, timeout time.Duration, instruction string, images []string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.Generate(ctx, instruction, images)
}
