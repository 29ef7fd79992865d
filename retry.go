package seer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"
)

// Statuses retried by default. OpenRouter answers 502 and 504 when the
// upstream model is overloaded, and 408 when it times out a request.
var defaultRetryStatuses = []int{408, 429, 500, 502, 503, 504}

type retryProvider struct {
	inner    Provider
	attempts int
	base     time.Duration
	timeout  time.Duration
	statuses []int
	logger   *slog.Logger
}

// RetryOption configures WithRetry.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the number of attempts, first call included. Default 3.
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// RetryBaseDelay sets the first backoff delay. It doubles on every retry. Default 1s.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.base = d }
}

// RetryTimeout bounds the whole sequence of attempts. Zero means no bound.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.timeout = d }
}

// RetryOn replaces the set of HTTP statuses that are retried.
func RetryOn(statuses ...int) RetryOption {
	return func(r *retryProvider) { r.statuses = statuses }
}

// RetryLogger sets the logger for retry events.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p so transient HTTP failures are retried with exponential
// backoff and jitter. A Retry-After sent by the server is a lower bound on
// the delay. Malformed model output is not retried here; the Extractor
// handles that with a corrective message.
//
//	llm = seer.WithRetry(openaicompat.New(key, model), seer.RetryMaxAttempts(4))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{
		inner:    p,
		attempts: 3,
		base:     time.Second,
		statuses: defaultRetryStatuses,
		logger:   nopLogger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		resp, err := r.inner.Chat(ctx, req)
		status, retryable := r.retryable(err)
		if !retryable || attempt == r.attempts {
			if retryable {
				r.logger.Error("provider retries exhausted", "provider", r.inner.Name(), "attempts", attempt, "error", err)
			}
			return resp, err
		}

		wait := r.delay(attempt, err)
		r.logger.Warn("provider call failed, retrying",
			"provider", r.inner.Name(), "status", status, "attempt", attempt, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ChatResponse{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *retryProvider) retryable(err error) (int, bool) {
	var h *ErrHTTP
	if !errors.As(err, &h) {
		return 0, false
	}
	return h.Status, slices.Contains(r.statuses, h.Status)
}

// delay is base·2^(attempt-1) plus up to half of that in jitter, raised to
// the server's Retry-After when that is longer.
func (r *retryProvider) delay(attempt int, err error) time.Duration {
	d := r.base << (attempt - 1)
	if d > 0 {
		d += rand.N(d/2 + 1)
	}
	var h *ErrHTTP
	if errors.As(err, &h) && h.RetryAfter > d {
		return h.RetryAfter
	}
	return d
}

var _ Provider = (*retryProvider)(nil)
