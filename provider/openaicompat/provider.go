package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nevindra/seer"
)

// DefaultBaseURL is the OpenRouter API base.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Provider implements seer.Provider for any OpenAI-compatible API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	headers map[string]string
	opts    []Option
	logger  *slog.Logger
}

// New creates a chat provider for model. Requests go to DefaultBaseURL
// unless WithBaseURL says otherwise; "/chat/completions" is appended.
func New(apiKey, model string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
		client:  &http.Client{},
		name:    "openrouter",
		logger:  seer.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.baseURL = strings.TrimRight(p.baseURL, "/")
	return p
}

// Name returns the provider name (default "openrouter", see WithName).
func (p *Provider) Name() string { return p.name }

// Model returns the model identifier sent with every request.
func (p *Provider) Model() string { return p.model }

// Chat sends a chat completion request. When req.Tools is non-empty the
// response may carry ToolCalls; when req.ResponseSchema is set the request
// asks for json_schema output.
func (p *Provider) Chat(ctx context.Context, req seer.ChatRequest) (seer.ChatResponse, error) {
	body := BuildBody(req.Messages, req.Tools, p.model, req.ResponseSchema, p.opts...)

	resp, err := p.send(ctx, body)
	if err != nil {
		return seer.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return seer.ChatResponse{}, p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return seer.ChatResponse{}, &seer.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	out, err := ParseResponse(p.name, chatResp)
	if err != nil {
		return out, err
	}
	p.logger.Debug("chat completed", "provider", p.name, "model", p.model,
		"tool_calls", len(out.ToolCalls), "input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	return out, nil
}

func (p *Provider) send(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &seer.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &seer.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return p.client.Do(httpReq)
}

// httpErr turns a non-200 response into an ErrHTTP for WithRetry, keeping
// the Retry-After hint sent with 429 and 503.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &seer.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: seer.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

var _ seer.Provider = (*Provider)(nil)
