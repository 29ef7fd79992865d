package openaicompat

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nevindra/seer"
)

// ParseResponse converts choices[0] of resp into a seer response.
func ParseResponse(provider string, resp ChatResponse) (seer.ChatResponse, error) {
	var out seer.ChatResponse
	if resp.Error != nil {
		return out, &seer.ErrLLM{Provider: provider, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return out, &seer.ErrLLM{Provider: provider, Message: "response has no choices"}
	}

	msg := resp.Choices[0].Message
	if msg != nil {
		if msg.Refusal != "" && msg.Content == "" {
			return out, &seer.ErrLLM{Provider: provider, Message: "refused: " + msg.Refusal}
		}
		out.Content = msg.Content
		out.ToolCalls = ParseToolCalls(msg.ToolCalls)
	}
	if resp.Usage != nil {
		out.Usage = seer.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// ParseToolCalls converts tool call requests to seer tool calls. Some
// OpenRouter upstreams omit call IDs; those get a generated one so tool
// results can still be matched. Invalid argument JSON becomes {}.
func ParseToolCalls(tcs []ToolCallRequest) []seer.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]seer.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, seer.ToolCall{ID: id, Name: tc.Function.Name, Args: args})
	}
	return out
}
