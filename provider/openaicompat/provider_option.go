package openaicompat

import (
	"log/slog"
	"net/http"
)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithBaseURL points the provider at another OpenAI-compatible API, e.g.
// "https://api.openai.com/v1" or "http://localhost:11434/v1".
func WithBaseURL(url string) ProviderOption {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithName sets the name returned by Name().
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient sets a custom HTTP client (timeouts, proxies).
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithHeader adds a header to every request. OpenRouter reads
// "HTTP-Referer" and "X-Title" for app attribution.
func WithHeader(key, value string) ProviderOption {
	return func(p *Provider) {
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[key] = value
	}
}

// WithOptions appends request options applied to every request.
func WithOptions(opts ...Option) ProviderOption {
	return func(p *Provider) { p.opts = append(p.opts, opts...) }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}
