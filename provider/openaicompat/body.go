package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/seer"
)

// BuildBody converts seer messages into an OpenAI-format request. Options
// are applied last and override the defaults.
func BuildBody(messages []seer.ChatMessage, tools []seer.ToolDefinition, model string, schema *seer.ResponseSchema, opts ...Option) ChatRequest {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		msg := Message{Role: m.Role, Name: m.Name, ToolCallID: m.ToolCallID}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			msg.Content = &content
		}
		for _, tc := range m.ToolCalls {
			args := string(tc.Args)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCallRequest{
				ID:       tc.ID,
				Type:     "function",
				Function: FunctionCall{Name: tc.Name, Arguments: args},
			})
		}
		msgs = append(msgs, msg)
	}

	req := ChatRequest{Model: model, Messages: msgs}
	if len(tools) > 0 {
		req.Tools = BuildToolDefs(tools)
	}
	if schema != nil && len(schema.Schema) > 0 {
		req.ResponseFormat = &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchema{Name: schema.Name, Schema: schema.Schema, Strict: true},
		}
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// BuildToolDefs converts seer tool definitions to the OpenAI tool format.
func BuildToolDefs(tools []seer.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, Tool{
			Type:     "function",
			Function: Function{Name: t.Name, Description: t.Description, Parameters: params},
		})
	}
	return out
}
