package seer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type panicTool struct{}

func (panicTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "explode"}}
}

func (panicTool) Execute(context.Context, string, json.RawMessage) (ToolResult, error) {
	panic("kaboom")
}

// slowTool sleeps and tracks how many calls run at once.
type slowTool struct {
	running atomic.Int32
	peak    atomic.Int32
}

func (s *slowTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "slow"}}
}

func (s *slowTool) Execute(ctx context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
	}
	return ToolResult{Content: string(args)}, nil
}

func newTestLoop(t *testing.T, llm Provider, maxIter, parallel int, tools ...Tool) *toolLoop {
	t.Helper()
	agent, err := NewTarotAgent(llm, WithTools(tools...))
	if err != nil {
		t.Fatal(err)
	}
	return newToolLoop(agent, maxIter, parallel, nopLogger, nil)
}

func TestToolLoopPhases(t *testing.T) {
	llm := newScriptedLLM().
		reply("chat", ChatResponse{Content: "Let me draw.", ToolCalls: []ToolCall{toolCall("c1", "greet", `{}`)}}).
		on("chat", "Final reading")
	l := newTestLoop(t, llm, 3, 2, mockTool{})
	st := newTurnState("t", TurnInput{Message: "hi", UserID: "u"})
	ctx := context.Background()

	if l.phase != LoopAwaitingAgent {
		t.Fatalf("initial phase = %s", l.phase)
	}
	out, err := l.step(ctx, st)
	if err != nil || !out.WantsTools || l.phase != LoopExecutingTools {
		t.Fatalf("after agent: out=%+v err=%v phase=%s", out, err, l.phase)
	}
	if st.MessageToUser != "Let me draw." {
		t.Errorf("interim text not surfaced: %q", st.MessageToUser)
	}
	out, err = l.step(ctx, st)
	if err != nil || out.WantsTools || l.phase != LoopAwaitingAgent || l.rounds != 1 {
		t.Fatalf("after tools: out=%+v err=%v phase=%s rounds=%d", out, err, l.phase, l.rounds)
	}
	out, err = l.step(ctx, st)
	if err != nil || out.WantsTools || l.phase != LoopDone {
		t.Fatalf("after final: out=%+v err=%v phase=%s", out, err, l.phase)
	}
	if st.MessageToUser != "Final reading" {
		t.Errorf("MessageToUser = %q", st.MessageToUser)
	}
	if _, err := l.step(ctx, st); err == nil {
		t.Error("stepping a finished loop should fail")
	}

	roles := make([]string, len(st.History))
	for i, m := range st.History {
		roles[i] = m.Role
	}
	if got := strings.Join(roles, ","); got != "user,assistant,tool,assistant" {
		t.Errorf("history roles = %s", got)
	}
	if st.History[2].Content != "hello from greet" || st.History[2].ToolCallID != "c1" {
		t.Errorf("tool message = %+v", st.History[2])
	}
}

func TestToolLoopPanicBecomesToolError(t *testing.T) {
	llm := newScriptedLLM().reply("chat", ChatResponse{ToolCalls: []ToolCall{
		toolCall("c1", "explode", `{}`),
		toolCall("c2", "greet", `{}`),
	}})
	l := newTestLoop(t, llm, 3, 2, panicTool{}, mockTool{})
	st := newTurnState("t", TurnInput{Message: "hi", UserID: "u"})

	if _, err := l.step(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if _, err := l.step(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	got := st.History[len(st.History)-2:]
	if !strings.HasPrefix(got[0].Content, `error: tool "explode" panic: kaboom`) {
		t.Errorf("panic result = %q", got[0].Content)
	}
	if got[1].Content != "hello from greet" {
		t.Errorf("second result = %q", got[1].Content)
	}
}

func TestToolLoopParallelLimit(t *testing.T) {
	var calls []ToolCall
	for i := 0; i < 8; i++ {
		calls = append(calls, toolCall("c", "slow", `"`+string(rune('a'+i))+`"`))
	}
	slow := &slowTool{}
	l := newTestLoop(t, newScriptedLLM(), 3, 3, slow)

	results := l.dispatch(context.Background(), calls)
	if peak := slow.peak.Load(); peak > 3 || peak < 2 {
		t.Errorf("peak concurrency = %d, want 2..3", peak)
	}
	if got := strings.Join(results, ""); got != `"a""b""c""d""e""f""g""h"` {
		t.Errorf("results out of call order: %s", got)
	}
}

func TestToolLoopLimitCountsRounds(t *testing.T) {
	llm := newScriptedLLM()
	for i := 0; i < 2; i++ {
		llm.reply("chat", ChatResponse{ToolCalls: []ToolCall{toolCall("c", "greet", `{}`)}})
	}
	l := newTestLoop(t, llm, 1, 1, mockTool{})
	st := newTurnState("t", TurnInput{Message: "hi", UserID: "u"})
	ctx := context.Background()

	if _, err := l.step(ctx, st); err != nil {
		t.Fatal(err)
	}
	if _, err := l.step(ctx, st); err != nil {
		t.Fatal(err)
	}
	if _, err := l.step(ctx, st); !errors.Is(err, ErrLoopLimit) {
		t.Fatalf("err = %v, want ErrLoopLimit", err)
	}
}

func TestToolLoopCancelledContext(t *testing.T) {
	llm := newScriptedLLM().reply("chat", ChatResponse{ToolCalls: []ToolCall{toolCall("c1", "greet", `{}`)}})
	l := newTestLoop(t, llm, 3, 1, mockTool{})
	st := newTurnState("t", TurnInput{Message: "hi", UserID: "u"})
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := l.step(ctx, st); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := l.step(ctx, st); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if last := st.History[len(st.History)-1]; last.Content != "error: context canceled" {
		t.Errorf("tool message = %q", last.Content)
	}
}

func TestLoopPhaseString(t *testing.T) {
	if LoopExecutingTools.String() != "executing_tools" || LoopPhase(9).String() != "LoopPhase(9)" {
		t.Error("unexpected phase names")
	}
}

func TestToolLoopEmptyFinalReply(t *testing.T) {
	llm := newScriptedLLM().
		reply("chat", ChatResponse{Content: "Drawing The Fool and The Tower.", ToolCalls: []ToolCall{toolCall("c1", "greet", `{}`)}}).
		reply("chat", ChatResponse{Content: "  \n"})
	l := newTestLoop(t, llm, 3, 1, mockTool{})
	st := newTurnState("t", TurnInput{Message: "hi", UserID: "u"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.step(ctx, st); err != nil {
			t.Fatal(err)
		}
	}
	_, err := l.step(ctx, st)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
	if l.phase == LoopDone {
		t.Error("loop finished on an empty reply")
	}
	if last := st.History[len(st.History)-1]; last.Role != "tool" {
		t.Errorf("empty reply was appended to history: %+v", last)
	}
}
