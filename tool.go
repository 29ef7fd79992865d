package seer

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry is the capability registry bound to one agent: every entry is
// a (name, JSON schema, invoke) triple resolved once at startup. The tool
// loop only sees definitions and Execute; it does not care whether a tool
// lives in-process or behind an MCP server.
type ToolRegistry struct {
	tools []Tool
	index map[string]Tool
}

// NewToolRegistry creates a registry holding tools. Duplicate function names
// are rejected.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{index: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a tool. Returns an error if one of its function names is
// already registered.
func (r *ToolRegistry) Add(t Tool) error {
	if r.index == nil {
		r.index = make(map[string]Tool)
	}
	for _, d := range t.Definitions() {
		if _, dup := r.index[d.Name]; dup {
			return fmt.Errorf("tool %q registered twice", d.Name)
		}
	}
	for _, d := range t.Definitions() {
		r.index[d.Name] = t
	}
	r.tools = append(r.tools, t)
	return nil
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.index[name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	return t.Execute(ctx, name, args)
}
