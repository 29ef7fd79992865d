package seer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// agentConfig holds the settings shared by the router and the tool agents.
type agentConfig struct {
	prompt PromptFunc
	tools  []Tool
	logger *slog.Logger
	tracer Tracer
}

// AgentOption configures an agent node.
type AgentOption func(*agentConfig)

// WithPrompt sets the function building the agent's system prompt.
func WithPrompt(fn PromptFunc) AgentOption {
	return func(c *agentConfig) { c.prompt = fn }
}

// WithTools binds tools to a tool agent.
func WithTools(tools ...Tool) AgentOption {
	return func(c *agentConfig) { c.tools = append(c.tools, tools...) }
}

// WithTracer sets the tracer for agent spans.
func WithTracer(t Tracer) AgentOption {
	return func(c *agentConfig) { c.tracer = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AgentOption {
	return func(c *agentConfig) { c.logger = l }
}

func buildAgentConfig(opts []AgentOption) agentConfig {
	c := agentConfig{logger: nopLogger}
	for _, o := range opts {
		o(&c)
	}
	if c.logger == nil {
		c.logger = nopLogger
	}
	return c
}

// RouterNode picks the branch for a turn. It is single-shot and has no tools.
type RouterNode struct {
	extractor *Extractor
	prompt    PromptFunc
	logger    *slog.Logger
	tracer    Tracer
}

// NewRouter creates the router on top of x's route mode.
func NewRouter(x *Extractor, opts ...AgentOption) (*RouterNode, error) {
	cfg := buildAgentConfig(opts)
	if len(cfg.tools) > 0 {
		return nil, errors.New("router does not take tools")
	}
	if cfg.prompt == nil {
		cfg.prompt = RouterPrompt
	}
	return &RouterNode{extractor: x, prompt: cfg.prompt, logger: cfg.logger, tracer: cfg.tracer}, nil
}

// Decide routes the turn. The caller records the decision in the state.
func (r *RouterNode) Decide(ctx context.Context, st *TurnState) (RouteDecision, error) {
	ctx, span := startSpan(ctx, r.tracer, "agent.router")
	defer span.End()

	dec, err := r.extractor.Route(ctx, st, r.prompt)
	if err != nil {
		span.Error(err)
		return RouteDecision{}, err
	}
	span.SetAttr(StringAttr("route", dec.Next.String()))
	r.logger.Debug("routed", "turn", st.ID, "route", dec.Next)
	return dec, nil
}

// ToolAgent is a model bound to a tool registry: the tarot or the astrology
// agent. One Think call is one model turn; the tool loop drives repetition.
type ToolAgent struct {
	name     string
	provider Provider
	prompt   PromptFunc
	registry *ToolRegistry
	logger   *slog.Logger
	tracer   Tracer
}

// NewToolAgent creates a tool agent. Tool names must be unique across all
// bound tools.
func NewToolAgent(name string, p Provider, opts ...AgentOption) (*ToolAgent, error) {
	cfg := buildAgentConfig(opts)
	if cfg.prompt == nil {
		return nil, fmt.Errorf("agent %s: prompt is required", name)
	}
	reg, err := NewToolRegistry(cfg.tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	return &ToolAgent{
		name:     name,
		provider: p,
		prompt:   cfg.prompt,
		registry: reg,
		logger:   cfg.logger,
		tracer:   cfg.tracer,
	}, nil
}

// NewTarotAgent creates the tarot agent with the default prompt.
func NewTarotAgent(p Provider, opts ...AgentOption) (*ToolAgent, error) {
	return NewToolAgent("taro", p, append([]AgentOption{WithPrompt(TarotPrompt)}, opts...)...)
}

// NewAstroAgent creates the astrology agent with the default prompt.
func NewAstroAgent(p Provider, opts ...AgentOption) (*ToolAgent, error) {
	return NewToolAgent("astro", p, append([]AgentOption{WithPrompt(AstroPrompt)}, opts...)...)
}

func (a *ToolAgent) Name() string { return a.name }

// Registry returns the agent's tools.
func (a *ToolAgent) Registry() *ToolRegistry { return a.registry }

// Think makes one model call over the system prompt and the turn history.
// The response either carries tool calls or is the final reply.
func (a *ToolAgent) Think(ctx context.Context, st *TurnState) (ChatResponse, error) {
	ctx, span := startSpan(ctx, a.tracer, "agent.think", StringAttr("agent.name", a.name))
	defer span.End()

	msgs := make([]ChatMessage, 0, len(st.History)+1)
	msgs = append(msgs, SystemMessage(a.prompt(st)))
	msgs = append(msgs, st.History...)

	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: msgs, Tools: a.registry.AllDefinitions()})
	if err != nil {
		span.Error(err)
		return ChatResponse{}, fmt.Errorf("agent %s: %w", a.name, err)
	}
	span.SetAttr(
		IntAttr("tokens.input", resp.Usage.InputTokens),
		IntAttr("tokens.output", resp.Usage.OutputTokens),
		IntAttr("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}
