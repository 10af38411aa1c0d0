package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return "ok", nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestThrottledClientRetriesThenSucceeds(t *testing.T) {
	inner := &flakyClient{failures: 2}
	c := NewThrottledClient(inner, 1000, fastRetry(3), nil)

	resp, err := c.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 3, inner.calls)
}

func TestThrottledClientExhaustsAttempts(t *testing.T) {
	inner := &flakyClient{failures: 10}
	c := NewThrottledClient(inner, 1000, fastRetry(3), nil)

	_, err := c.Generate(context.Background(), "prompt")
	assert.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestThrottledClientHonorsCancellation(t *testing.T) {
	inner := &flakyClient{failures: 10}
	c := NewThrottledClient(inner, 1000, RetryConfig{
		MaxAttempts:       5,
		BackoffBase:       time.Hour, // never elapses; cancellation must win
		BackoffMultiplier: 1,
		MaxBackoff:        time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Generate(ctx, "prompt")
	assert.ErrorIs(t, err, context.Canceled)
}
