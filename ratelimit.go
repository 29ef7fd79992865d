package seer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitProvider throttles calls to a provider shared by every node of
// every running turn.
type rateLimitProvider struct {
	inner Provider
	rpm   *rate.Limiter
	tpm   *rate.Limiter
}

// RateLimitOption configures WithRateLimit.
type RateLimitOption func(*rateLimitProvider)

// RPM caps requests per minute.
func RPM(n int) RateLimitOption {
	return func(r *rateLimitProvider) {
		if n > 0 {
			r.rpm = rate.NewLimiter(perMinute(n), n)
		}
	}
}

// TPM caps tokens per minute (input plus output). Usage is only known after a
// call, so the call that crosses the budget completes and later calls wait.
func TPM(n int) RateLimitOption {
	return func(r *rateLimitProvider) {
		if n > 0 {
			r.tpm = rate.NewLimiter(perMinute(n), n)
		}
	}
}

// WithRateLimit wraps p with proactive rate limiting. Compose it outside
// WithRetry so retries are throttled too:
//
//	llm = seer.WithRateLimit(seer.WithRetry(llm), seer.RPM(60), seer.TPM(200000))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	r := &rateLimitProvider{inner: p}
	for _, o := range opts {
		o(r)
	}
	return r
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if r.rpm != nil {
		if err := r.rpm.Wait(ctx); err != nil {
			return ChatResponse{}, err
		}
	}
	if r.tpm != nil {
		// Waits out the debt left by earlier responses.
		if err := r.tpm.Wait(ctx); err != nil {
			return ChatResponse{}, err
		}
	}
	resp, err := r.inner.Chat(ctx, req)
	if err == nil && r.tpm != nil {
		if n := resp.Usage.InputTokens + resp.Usage.OutputTokens; n > 0 {
			r.tpm.ReserveN(time.Now(), min(n, r.tpm.Burst()))
		}
	}
	return resp, err
}

var _ Provider = (*rateLimitProvider)(nil)
