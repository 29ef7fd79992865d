package openaicompat

// Option configures a chat completion request.
type Option func(*ChatRequest)

// WithTemperature sets the sampling temperature (0.0 to 2.0).
func WithTemperature(t float64) Option {
	return func(r *ChatRequest) { r.Temperature = &t }
}

// WithTopP sets nucleus sampling top-p.
func WithTopP(p float64) Option {
	return func(r *ChatRequest) { r.TopP = &p }
}

// WithMaxTokens caps output tokens.
func WithMaxTokens(n int) Option {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

// WithSeed sets a deterministic seed.
func WithSeed(s int) Option {
	return func(r *ChatRequest) { r.Seed = &s }
}

// WithToolChoice controls tool selection: "none", "auto", "required", or a
// specific tool object.
func WithToolChoice(choice any) Option {
	return func(r *ChatRequest) { r.ToolChoice = choice }
}

// WithParallelToolCalls allows or forbids several tool calls per response.
// Only sent when the request carries tools.
func WithParallelToolCalls(on bool) Option {
	return func(r *ChatRequest) {
		if len(r.Tools) > 0 {
			r.ParallelToolCall = &on
		}
	}
}
