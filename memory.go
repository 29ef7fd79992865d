package seer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// --- Memory store contract ---

// Graph search scopes.
const (
	ScopeEdges = "edges" // facts about the user
	ScopeNodes = "nodes" // entities and summaries
)

// MemoryMessage is one entry appended to a memory thread.
type MemoryMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// MemoryStore is long-term conversational memory keyed by thread. A thread
// belongs to one user; the workflow uses the user ID as the thread ID.
type MemoryStore interface {
	// CreateThread creates a thread owned by userID. Creating an existing
	// thread is not an error.
	CreateThread(ctx context.Context, threadID, userID, name string) error
	// ThreadContext returns the prior-session summary of a thread.
	// Returns ErrThreadNotFound when the thread does not exist.
	ThreadContext(ctx context.Context, threadID string) (string, error)
	// AddMessages appends messages in order. Returns ErrThreadNotFound when
	// the thread does not exist.
	AddMessages(ctx context.Context, threadID string, msgs []MemoryMessage) error
	// SearchGraph searches the user's memory graph in scope ScopeEdges or
	// ScopeNodes and returns at most limit results.
	SearchGraph(ctx context.Context, userID, query, scope string, limit int) ([]string, error)
}

// --- Gateway ---

// MemoryGateway fetches context before a turn and commits the summarized
// exchange after it.
type MemoryGateway struct {
	store     MemoryStore
	extractor *Extractor
	locks     keyedMutex
	logger    *slog.Logger
	tracer    Tracer
}

// GatewayOption configures a MemoryGateway.
type GatewayOption func(*MemoryGateway)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *MemoryGateway) { g.logger = l }
}

// WithGatewayTracer traces fetch and commit.
func WithGatewayTracer(t Tracer) GatewayOption {
	return func(g *MemoryGateway) { g.tracer = t }
}

// NewMemoryGateway creates a gateway over store. x summarizes turns before
// they are committed.
func NewMemoryGateway(store MemoryStore, x *Extractor, opts ...GatewayOption) *MemoryGateway {
	g := &MemoryGateway{store: store, extractor: x, logger: nopLogger}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Store returns the underlying store.
func (g *MemoryGateway) Store() MemoryStore { return g.store }

// FetchContext returns the context blob for a user. It never fails: when the
// store has nothing or cannot be reached, the context holds only the name.
func (g *MemoryGateway) FetchContext(ctx context.Context, userID, name string) string {
	ctx, span := startSpan(ctx, g.tracer, "memory.fetch", StringAttr("user", userID))
	defer span.End()

	base := "User name: " + name
	summary, err := g.store.ThreadContext(ctx, userID)
	switch {
	case errors.Is(err, ErrThreadNotFound):
		g.logger.Debug("no memory thread yet", "user", userID)
		return base
	case err != nil:
		span.Error(err)
		g.logger.Warn("memory fetch failed, using name only", "user", userID, "error", err)
		return base
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return base
	}
	span.SetAttr(BoolAttr("memory.hit", true))
	return base + "\nContext: " + summary
}

// Commit summarizes one exchange and appends it to the user's thread as a
// user entry followed by an assistant entry. Commits for the same user are
// serialized. The thread is created on first use. Any failure wraps
// ErrCommitFailed.
func (g *MemoryGateway) Commit(ctx context.Context, id Identity, user, assistant string) error {
	ctx, span := startSpan(ctx, g.tracer, "memory.commit", StringAttr("user", id.UserID))
	defer span.End()

	err := g.commit(ctx, id, user, assistant)
	if err != nil {
		span.Error(err)
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return nil
}

func (g *MemoryGateway) commit(ctx context.Context, id Identity, user, assistant string) error {
	sum, err := g.extractor.Summarize(ctx, user, assistant)
	if err != nil {
		return err
	}
	msgs := []MemoryMessage{
		{Role: "user", Name: id.Name, Content: sum.User},
		{Role: "assistant", Content: sum.Assistant},
	}

	unlock := g.locks.lock(id.UserID)
	defer unlock()

	// Summarizing can take a while; do not write for a caller that left.
	if err := ctx.Err(); err != nil {
		return err
	}
	err = g.store.AddMessages(ctx, id.UserID, msgs)
	if errors.Is(err, ErrThreadNotFound) {
		g.logger.Info("creating memory thread", "user", id.UserID)
		if err := g.store.CreateThread(ctx, id.UserID, id.UserID, id.Name); err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		err = g.store.AddMessages(ctx, id.UserID, msgs)
	}
	return err
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// --- Thread ID on context ---

type threadIDKey struct{}

// WithThreadID returns a context carrying the memory thread of the current
// turn. The memory search tools read it.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey{}, threadID)
}

// ThreadIDFrom returns the thread set by WithThreadID.
func ThreadIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(threadIDKey{}).(string)
	return id, ok && id != ""
}

// --- Memory search tools ---

// Search result limits.
const (
	DefaultSearchLimit = 3
	MaxSearchLimit     = 20
)

// MemorySearchTool exposes graph search over the turn's memory thread as
// search_facts and search_nodes.
type MemorySearchTool struct {
	store MemoryStore
}

var _ Tool = (*MemorySearchTool)(nil)

// NewMemorySearchTool creates the memory search tools over store.
func NewMemorySearchTool(store MemoryStore) *MemorySearchTool {
	return &MemorySearchTool{store: store}
}

const searchParams = `{"type":"object","properties":{` +
	`"query":{"type":"string","description":"What to look for"},` +
	`"limit":{"type":"integer","description":"Maximum number of results","default":3}},` +
	`"required":["query"]}`

func (t *MemorySearchTool) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "search_facts",
			Description: "Search facts remembered about the user from earlier conversations.",
			Parameters:  json.RawMessage(searchParams),
		},
		{
			Name:        "search_nodes",
			Description: "Search people, places and topics in the user's memory graph.",
			Parameters:  json.RawMessage(searchParams),
		},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	var scope string
	switch name {
	case "search_facts":
		scope = ScopeEdges
	case "search_nodes":
		scope = ScopeNodes
	default:
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	var p struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(p.Query) == "" {
		return ToolResult{Error: "query is required"}, nil
	}
	thread, ok := ThreadIDFrom(ctx)
	if !ok {
		return ToolResult{Error: "no memory thread for this turn"}, nil
	}

	results, err := t.store.SearchGraph(ctx, thread, p.Query, scope, clampLimit(p.Limit))
	if err != nil {
		return ToolResult{Error: err.Error()}, nil
	}
	if len(results) == 0 {
		return ToolResult{Content: "No results."}, nil
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return ToolResult{Content: strings.TrimSuffix(b.String(), "\n")}, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultSearchLimit
	case n > MaxSearchLimit:
		return MaxSearchLimit
	}
	return n
}
