package seer

import (
	"context"
	"encoding/json"

	"github.com/nevindra/seer/mcp"
)

// MCPTools exposes the tools of an MCP server as a Tool, so an agent's
// registry can mix them with in-process tools.
type MCPTools struct {
	client *mcp.Client
	defs   []ToolDefinition
}

var _ Tool = (*MCPTools)(nil)

// NewMCPTools lists the server's tools once and caches their definitions.
// The client must already be initialized.
func NewMCPTools(ctx context.Context, c *mcp.Client) (*MCPTools, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		params := t.InputSchema
		if len(params) == 0 || string(params) == "null" {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs[i] = ToolDefinition{Name: t.Name, Description: t.Description, Parameters: params}
	}
	return &MCPTools{client: c, defs: defs}, nil
}

func (t *MCPTools) Definitions() []ToolDefinition { return t.defs }

// Execute forwards the call. In-band tool errors become ToolResult.Error;
// transport failures are returned as errors.
func (t *MCPTools) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	res, err := t.client.CallTool(ctx, name, args)
	if err != nil {
		return ToolResult{}, err
	}
	if res.IsError {
		return ToolResult{Error: res.Text()}, nil
	}
	return ToolResult{Content: res.Text()}, nil
}
