package seer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultTurnTimeout bounds a whole turn.
const DefaultTurnTimeout = 3 * time.Minute

// TurnRunner runs one turn and streams its updates into ch, closing ch when
// the turn is over. *Workflow is the implementation; the observer package
// wraps it.
type TurnRunner interface {
	Run(ctx context.Context, in TurnInput, ch chan<- Update) (TurnState, error)
}

// Workflow is the turn engine. It owns the state of each turn, runs one node
// at a time and moves between nodes only through Transition. A Workflow is
// safe for concurrent use: every Run gets its own state and tool loops.
type Workflow struct {
	router    *RouterNode
	tarot     *ToolAgent
	astro     *ToolAgent
	extractor *Extractor
	gateway   *MemoryGateway

	maxIter  int
	parallel int
	timeout  time.Duration
	logger   *slog.Logger
	tracer   Tracer
}

var _ TurnRunner = (*Workflow)(nil)

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithMaxToolIterations caps the tool rounds per agent per turn.
func WithMaxToolIterations(n int) WorkflowOption {
	return func(w *Workflow) {
		if n > 0 {
			w.maxIter = n
		}
	}
}

// WithParallelTools limits how many tool calls of one round run at once.
func WithParallelTools(n int) WorkflowOption {
	return func(w *Workflow) {
		if n > 0 {
			w.parallel = n
		}
	}
}

// WithTurnTimeout sets the whole-turn deadline. Zero or less disables it.
func WithTurnTimeout(d time.Duration) WorkflowOption {
	return func(w *Workflow) { w.timeout = d }
}

// WithWorkflowLogger sets the logger.
func WithWorkflowLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

// WithWorkflowTracer traces turns and nodes.
func WithWorkflowTracer(t Tracer) WorkflowOption {
	return func(w *Workflow) { w.tracer = t }
}

// NewWorkflow wires the nodes into a turn engine.
func NewWorkflow(router *RouterNode, tarot, astro *ToolAgent, x *Extractor, g *MemoryGateway, opts ...WorkflowOption) (*Workflow, error) {
	switch {
	case router == nil:
		return nil, errors.New("workflow: router is required")
	case tarot == nil:
		return nil, errors.New("workflow: tarot agent is required")
	case astro == nil:
		return nil, errors.New("workflow: astro agent is required")
	case x == nil:
		return nil, errors.New("workflow: extractor is required")
	case g == nil:
		return nil, errors.New("workflow: memory gateway is required")
	}
	w := &Workflow{
		router:    router,
		tarot:     tarot,
		astro:     astro,
		extractor: x,
		gateway:   g,
		maxIter:   DefaultMaxToolIterations,
		parallel:  DefaultParallelTools,
		timeout:   DefaultTurnTimeout,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = nopLogger
	}
	return w, nil
}

// Run executes one turn. After every node that changed the visible state an
// Update with the changed fields is sent on ch (ch may be nil). The last
// update is terminal: next_node "end" on success, or error set and
// memory_committed false when the turn failed. Run closes ch before it
// returns. Fatal errors are returned as *TurnError.
func (w *Workflow) Run(ctx context.Context, in TurnInput, ch chan<- Update) (TurnState, error) {
	if ch != nil {
		defer close(ch)
	}
	if err := in.Validate(); err != nil {
		err = fmt.Errorf("invalid turn input: %w", err)
		w.emitFailure(ctx, ch, err)
		return TurnState{}, err
	}

	t := &turn{
		w:     w,
		st:    newTurnState(uuid.NewString(), in),
		tarot: newToolLoop(w.tarot, w.maxIter, w.parallel, w.logger, w.tracer),
		astro: newToolLoop(w.astro, w.maxIter, w.parallel, w.logger, w.tracer),
	}
	st := t.st
	logger := w.logger.With("turn", st.ID, "user", in.UserID)

	turnCtx, cancel := ctx, context.CancelFunc(func() {})
	if w.timeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, w.timeout)
	}
	defer cancel()
	turnCtx = WithThreadID(turnCtx, in.UserID)
	turnCtx, span := startSpan(turnCtx, w.tracer, "turn", StringAttr("turn.id", st.ID), StringAttr("user", in.UserID))
	defer span.End()

	logger.Info("turn started")
	start := time.Now()
	var prev Snapshot
	for st.Next != NodeEnd {
		node := st.Next
		err := turnCtx.Err()
		var out Outcome
		if err == nil {
			out, err = t.step(turnCtx, node)
		}
		if err == nil {
			st.Next, err = Transition(node, out)
		}
		if err != nil {
			if turnCtx.Err() != nil && ctx.Err() == nil {
				err = fmt.Errorf("%w after %s: %w", ErrTurnTimeout, w.timeout, err)
			}
			terr := &TurnError{Node: node, Err: err}
			span.Error(terr)
			logger.Error("turn failed", "node", node, "error", err)
			w.emitFailure(ctx, ch, terr)
			return *st, terr
		}
		logger.Debug("node done", "node", node, "next", st.Next)

		snap := st.Snapshot()
		if u := diff(prev, snap); !u.empty() {
			w.emit(ctx, ch, u)
		}
		prev = snap
	}

	span.SetAttr(StringAttr("turn.route", t.route.String()))
	logger.Info("turn finished", "route", t.route, "duration", time.Since(start))
	return *st, nil
}

// emit sends u unless the caller went away.
func (w *Workflow) emit(ctx context.Context, ch chan<- Update, u Update) {
	if ch == nil {
		return
	}
	select {
	case ch <- u:
	case <-ctx.Done():
	}
}

func (w *Workflow) emitFailure(ctx context.Context, ch chan<- Update, err error) {
	committed := false
	w.emit(ctx, ch, Update{Error: err.Error(), MemoryCommitted: &committed})
}

// turn is the per-run part of the engine.
type turn struct {
	w     *Workflow
	st    *TurnState
	tarot *toolLoop
	astro *toolLoop
	route Node
}

// step runs one node against the turn state.
func (t *turn) step(ctx context.Context, node Node) (Outcome, error) {
	ctx, span := startSpan(ctx, t.w.tracer, "node."+node.String())
	defer span.End()

	out, err := t.run(ctx, node)
	if err != nil {
		span.Error(err)
	}
	return out, err
}

func (t *turn) run(ctx context.Context, node Node) (Outcome, error) {
	st, w := t.st, t.w
	switch node {
	case NodeTakeContext:
		st.Context = w.gateway.FetchContext(ctx, st.Identity.UserID, st.Identity.Name)
		return Outcome{}, nil

	case NodeRouter:
		dec, err := w.router.Decide(ctx, st)
		if err != nil {
			return Outcome{}, err
		}
		t.route = dec.Next
		st.UserMessage = lastUserMessage(st.History)
		if dec.Next == NodeAddMemory {
			st.MessageToUser = dec.Message
			st.Append(AssistantMessage(dec.Message))
		}
		return Outcome{Route: dec.Next}, nil

	case NodeTaro, NodeTaroTool:
		return t.tarot.step(ctx, st)

	case NodeAstro, NodeAstroTool:
		return t.astro.step(ctx, st)

	case NodeImg:
		art, err := w.extractor.Cards(ctx, st.MessageToUser)
		if err != nil {
			return Outcome{}, err
		}
		if err := st.SetTaroCards(art.Cards); err != nil {
			return Outcome{}, err
		}
		if err := st.SetUnlockName(art.Spread); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, nil

	case NodeAddMemory:
		if st.MemoryCommitted {
			return Outcome{}, fmt.Errorf("memory already committed for turn %s", st.ID)
		}
		if err := w.gateway.Commit(ctx, st.Identity, st.UserMessage, st.MessageToUser); err != nil {
			return Outcome{}, err
		}
		st.MemoryCommitted = true
		return Outcome{}, nil
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownNode, node)
}

// lastUserMessage returns the content of the latest user message.
func lastUserMessage(history []ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}
