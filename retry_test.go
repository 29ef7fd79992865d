package seer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	unavailable := &ErrHTTP{Status: 503, Body: "upstream overloaded"}
	tests := []struct {
		name      string
		script    func(*scriptedLLM)
		opts      []RetryOption
		wantCalls int
		wantErr   bool
	}{
		{
			name:      "first attempt",
			script:    func(s *scriptedLLM) { s.on("chat", "ok") },
			wantCalls: 1,
		},
		{
			name: "gateway error then success",
			script: func(s *scriptedLLM) {
				s.fail("chat", &ErrHTTP{Status: 502}).on("chat", "ok")
			},
			wantCalls: 2,
		},
		{
			name: "rate limited then success",
			script: func(s *scriptedLLM) {
				s.fail("chat", &ErrHTTP{Status: 429}).fail("chat", &ErrHTTP{Status: 429}).on("chat", "ok")
			},
			wantCalls: 3,
		},
		{
			name:      "bad request is final",
			script:    func(s *scriptedLLM) { s.fail("chat", &ErrHTTP{Status: 400, Body: "bad model"}) },
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "model error is final",
			script:    func(s *scriptedLLM) { s.fail("chat", &ErrLLM{Provider: "openrouter", Message: "refused"}) },
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name: "attempts exhausted",
			script: func(s *scriptedLLM) {
				s.fail("chat", unavailable).fail("chat", unavailable)
			},
			opts:      []RetryOption{RetryMaxAttempts(2)},
			wantCalls: 2,
			wantErr:   true,
		},
		{
			name: "custom status set",
			script: func(s *scriptedLLM) {
				s.fail("chat", unavailable)
			},
			opts:      []RetryOption{RetryOn(429)},
			wantCalls: 1,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newScriptedLLM()
			tt.script(llm)
			p := WithRetry(llm, append([]RetryOption{RetryBaseDelay(0)}, tt.opts...)...)
			resp, err := p.Chat(context.Background(), ChatRequest{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && resp.Content != "ok" {
				t.Errorf("content = %q", resp.Content)
			}
			if n := llm.count("chat"); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestWithRetryKeepsStructuredRequests(t *testing.T) {
	llm := newScriptedLLM().fail("route", &ErrHTTP{Status: 504}).on("route", `{"next_node":"taro"}`)
	p := WithRetry(llm, RetryBaseDelay(0))
	schema := &ResponseSchema{Name: "route"}
	if _, err := p.Chat(context.Background(), ChatRequest{ResponseSchema: schema}); err != nil {
		t.Fatal(err)
	}
	for _, req := range llm.requests {
		if req.ResponseSchema != schema {
			t.Fatal("retry dropped the response schema")
		}
	}
}

func TestWithRetryWaitsForRetryAfter(t *testing.T) {
	llm := newScriptedLLM().fail("chat", &ErrHTTP{Status: 429, RetryAfter: 40 * time.Millisecond}).on("chat", "ok")
	p := WithRetry(llm, RetryBaseDelay(time.Millisecond))
	start := time.Now()
	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if waited := time.Since(start); waited < 40*time.Millisecond {
		t.Errorf("waited %v, want at least the Retry-After of 40ms", waited)
	}
}

func TestWithRetryTimeout(t *testing.T) {
	llm := newScriptedLLM().fail("chat", &ErrHTTP{Status: 503}).on("chat", "ok")
	p := WithRetry(llm, RetryBaseDelay(time.Second), RetryTimeout(30*time.Millisecond))
	_, err := p.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if n := llm.count("chat"); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestRetryDelayGrows(t *testing.T) {
	r := WithRetry(newScriptedLLM(), RetryBaseDelay(100*time.Millisecond)).(*retryProvider)
	for attempt, floor := range []time.Duration{100, 200, 400} {
		floor *= time.Millisecond
		d := r.delay(attempt+1, errors.New("x"))
		if d < floor || d > floor+floor/2 {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt+1, d, floor, floor+floor/2)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{" 10 ", 10 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
