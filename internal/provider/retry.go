package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryProvider wraps a Provider with exponential backoff retry logic.
type RetryProvider struct {
	inner      Provider
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry wraps p so transient failures are retried up to maxRetries times
// beyond the first attempt.
func WithRetry(p Provider, maxRetries int) *RetryProvider {
	if maxRetries <= 0 {
		maxRetries = 4
	}
	return &RetryProvider{inner: p, maxRetries: maxRetries, baseDelay: 500 * time.Millisecond}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !r.isRetryable(err) || attempt == r.maxRetries {
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}

func (r *RetryProvider) isRetryable(err error) bool {
	msg := err.Error()
	// Retry on rate limits, server errors, connection issues
	for _, s := range []string{"429", "500", "502", "503", "529", "overloaded", "connection refused", "timeout", "deadline exceeded", "EOF", "reset by peer"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (r *RetryProvider) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
