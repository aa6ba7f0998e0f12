package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProvider struct {
	failures int
	err      error
	attempts int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Complete(_ context.Context, _ *Request) (*Response, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return nil, f.err
	}
	return &Response{Content: "hello", StopReason: "end_turn"}, nil
}

func fastRetry(inner Provider, maxRetries int) *RetryProvider {
	return &RetryProvider{inner: inner, maxRetries: maxRetries, baseDelay: time.Millisecond}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	f := &flakyProvider{failures: 2, err: errors.New("503 service unavailable")}
	r := fastRetry(f, 3)

	resp, err := r.Complete(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 3, f.attempts)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	f := &flakyProvider{failures: 100, err: errors.New("429 rate limited")}
	r := fastRetry(f, 2)

	_, err := r.Complete(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 3, f.attempts)
}

func TestRetryFailsFastOnNonRetryableError(t *testing.T) {
	f := &flakyProvider{failures: 100, err: errors.New("invalid api key")}
	r := fastRetry(f, 3)

	_, err := r.Complete(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, 1, f.attempts)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	f := &flakyProvider{failures: 100, err: errors.New("connection refused")}
	r := &RetryProvider{inner: f, maxRetries: 5, baseDelay: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Complete(ctx, &Request{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 1, f.attempts)
}

func TestRetrySucceedsWithoutRetrying(t *testing.T) {
	f := &flakyProvider{}
	r := fastRetry(f, 3)

	resp, err := r.Complete(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 1, f.attempts)
}

func TestWithRetryDefaults(t *testing.T) {
	f := &flakyProvider{}
	r := WithRetry(f, 0)

	assert.Equal(t, 4, r.maxRetries)
	assert.Equal(t, "flaky", r.Name())
}

func TestNewByName(t *testing.T) {
	for _, name := range []string{"anthropic", "openai", "xai", "openrouter"} {
		p, err := New(name, "test-key")
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}

	_, err := New("carrier-pigeon", "test-key")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestDefaultKeyEnv(t *testing.T) {
	assert.Equal(t, "ANTHROPIC_API_KEY", DefaultKeyEnv("anthropic"))
	assert.Equal(t, "OPENAI_API_KEY", DefaultKeyEnv("openai"))
	assert.Equal(t, "XAI_API_KEY", DefaultKeyEnv("xai"))
	assert.Equal(t, "OPENROUTER_API_KEY", DefaultKeyEnv("openrouter"))
	assert.Empty(t, DefaultKeyEnv("carrier-pigeon"))
}
