package seer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// LoopPhase is the state of a tool loop.
type LoopPhase int

const (
	LoopAwaitingAgent LoopPhase = iota
	LoopExecutingTools
	LoopDone
)

func (p LoopPhase) String() string {
	switch p {
	case LoopAwaitingAgent:
		return "awaiting_agent"
	case LoopExecutingTools:
		return "executing_tools"
	case LoopDone:
		return "done"
	}
	return fmt.Sprintf("LoopPhase(%d)", int(p))
}

// Defaults for the tool loop.
const (
	DefaultMaxToolIterations = 6
	DefaultParallelTools     = 4
)

// toolLoop binds one agent to its tools for the length of a turn. The engine
// calls step once per node visit: in LoopAwaitingAgent it asks the agent, in
// LoopExecutingTools it runs the pending calls and appends their results.
type toolLoop struct {
	agent    *ToolAgent
	maxIter  int
	parallel int
	logger   *slog.Logger
	tracer   Tracer

	phase   LoopPhase
	rounds  int
	pending []ToolCall
}

func newToolLoop(agent *ToolAgent, maxIter, parallel int, logger *slog.Logger, tracer Tracer) *toolLoop {
	return &toolLoop{agent: agent, maxIter: maxIter, parallel: parallel, logger: logger, tracer: tracer}
}

// step advances the loop by one phase and reports whether the agent asked
// for tools. Asking for tools after maxIter completed rounds is ErrLoopLimit.
func (l *toolLoop) step(ctx context.Context, st *TurnState) (Outcome, error) {
	switch l.phase {
	case LoopAwaitingAgent:
		resp, err := l.agent.Think(ctx, st)
		if err != nil {
			return Outcome{}, err
		}
		msg := ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		if len(resp.ToolCalls) == 0 {
			// The final reply replaces any interim text, so it must say something.
			if strings.TrimSpace(resp.Content) == "" {
				return Outcome{}, &MalformedError{Mode: "reply", Reason: l.agent.Name() + " returned an empty final reply"}
			}
			st.Append(msg)
			st.MessageToUser = resp.Content
			l.phase = LoopDone
			return Outcome{}, nil
		}
		st.Append(msg)
		if resp.Content != "" {
			st.MessageToUser = resp.Content
		}
		if l.rounds >= l.maxIter {
			return Outcome{}, fmt.Errorf("%w: %s asked for tools after %d rounds", ErrLoopLimit, l.agent.Name(), l.rounds)
		}
		l.pending = resp.ToolCalls
		l.phase = LoopExecutingTools
		return Outcome{WantsTools: true}, nil

	case LoopExecutingTools:
		l.rounds++
		results := l.dispatch(ctx, l.pending)
		for i, tc := range l.pending {
			st.Append(ToolResultMessage(tc.ID, results[i]))
		}
		l.pending = nil
		l.phase = LoopAwaitingAgent
		return Outcome{}, ctx.Err()
	}
	return Outcome{}, fmt.Errorf("tool loop for %s already done", l.agent.Name())
}

// dispatch runs calls concurrently, at most l.parallel at a time, and
// returns their tool-message contents in call order. Failures come back as
// "error: ..." so the agent can react to them.
func (l *toolLoop) dispatch(ctx context.Context, calls []ToolCall) []string {
	results := make([]string, len(calls))
	if len(calls) == 1 {
		results[0] = l.execute(ctx, calls[0])
		return results
	}
	var g errgroup.Group
	g.SetLimit(max(1, l.parallel))
	for i, tc := range calls {
		g.Go(func() error {
			results[i] = l.execute(ctx, tc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// execute runs one tool call with panic recovery.
func (l *toolLoop) execute(ctx context.Context, tc ToolCall) (content string) {
	ctx, span := startSpan(ctx, l.tracer, "tool.execute",
		StringAttr("tool.name", tc.Name), StringAttr("agent.name", l.agent.Name()))
	defer span.End()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			content = fmt.Sprintf("error: tool %q panic: %v", tc.Name, p)
			span.Error(fmt.Errorf("panic: %v", p))
			l.logger.Error("tool panicked", "tool", tc.Name, "panic", p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return "error: " + err.Error()
	}
	res, err := l.agent.registry.Execute(ctx, tc.Name, tc.Args)
	switch {
	case err != nil:
		span.Error(err)
		content = "error: " + err.Error()
	case res.Error != "":
		span.SetAttr(BoolAttr("tool.is_error", true))
		content = "error: " + res.Error
	default:
		content = res.Content
	}
	l.logger.Debug("tool executed", "tool", tc.Name, "duration", time.Since(start), "error", err)
	return content
}
