package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig bounds retries for a single oracle request.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns the defaults used by the server wiring.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// ThrottledClient wraps an LLMClient with request pacing and bounded retry.
// It sits beneath the engine's degradation policies: the engine only ever
// sees the final error after retries are spent.
type ThrottledClient struct {
	inner   LLMClient
	limiter *rate.Limiter
	retry   RetryConfig
	log     *zap.SugaredLogger
}

// NewThrottledClient wraps inner with a token-bucket limiter of rps requests
// per second (burst 1) and the given retry policy.
func NewThrottledClient(inner LLMClient, rps float64, retry RetryConfig, log *zap.SugaredLogger) *ThrottledClient {
	if rps <= 0 {
		rps = 1
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &ThrottledClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   retry,
		log:     log,
	}
}

func (c *ThrottledClient) Generate(ctx context.Context, prompt string) (string, error) {
	backoff := c.retry.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := c.inner.Generate(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == c.retry.MaxAttempts {
			break
		}
		if c.log != nil {
			c.log.Warnw("oracle request failed, retrying",
				"attempt", attempt, "backoff", backoff.String(), "error", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
		if backoff > c.retry.MaxBackoff {
			backoff = c.retry.MaxBackoff
		}
	}
	return "", lastErr
}
