// Package zep implements seer.MemoryStore on the Zep Cloud memory API:
// users, threads, user context and graph search.
package zep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	zepsdk "github.com/getzep/zep-go/v3"
	zepclient "github.com/getzep/zep-go/v3/client"
	"github.com/getzep/zep-go/v3/core"
	"github.com/getzep/zep-go/v3/option"

	"github.com/nevindra/seer"
)

// DefaultBaseURL is the Zep Cloud API base.
const DefaultBaseURL = "https://api.getzep.com/api/v2"

// Client talks to the Zep API through the official SDK.
type Client struct {
	api    *zepclient.Client
	logger *slog.Logger
}

type settings struct {
	baseURL     string
	http        *http.Client
	maxAttempts uint
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*settings)

// WithBaseURL overrides DefaultBaseURL. Empty keeps the default.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *settings) { s.http = h }
}

// WithMaxAttempts caps how many times the SDK sends one request, retries
// included. 0 keeps the SDK default.
func WithMaxAttempts(n uint) Option {
	return func(s *settings) { s.maxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

var _ seer.MemoryStore = (*Client)(nil)

// New creates a Zep client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	s := settings{baseURL: DefaultBaseURL, logger: seer.NopLogger()}
	for _, o := range opts {
		o(&s)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(s.baseURL, "/")),
	}
	if s.http != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(s.http))
	}
	if s.maxAttempts > 0 {
		reqOpts = append(reqOpts, option.WithMaxAttempts(s.maxAttempts))
	}
	return &Client{api: zepclient.NewClient(reqOpts...), logger: s.logger}
}

// CreateThread registers the user and then the thread. Either already
// existing is not an error.
func (c *Client) CreateThread(ctx context.Context, threadID, userID, name string) error {
	user := &zepsdk.CreateUserRequest{UserID: userID}
	if name != "" {
		user.FirstName = zepsdk.String(name)
	}
	if _, err := c.api.User.Add(ctx, user); err != nil && !isConflict(err) {
		return fmt.Errorf("zep: add user: %w", c.wrap(err))
	}
	thread := &zepsdk.CreateThreadRequest{ThreadID: threadID, UserID: userID}
	if _, err := c.api.Thread.Create(ctx, thread); err != nil && !isConflict(err) {
		return fmt.Errorf("zep: create thread: %w", c.wrap(err))
	}
	c.logger.Debug("zep: thread ready", "thread_id", threadID, "user", userID)
	return nil
}

// ThreadContext returns the user context block Zep assembles for a thread.
func (c *Client) ThreadContext(ctx context.Context, threadID string) (string, error) {
	resp, err := c.api.Thread.GetUserContext(ctx, threadID, nil)
	if err != nil {
		if isNotFound(err) {
			return "", seer.ErrThreadNotFound
		}
		return "", fmt.Errorf("zep: thread context: %w", c.wrap(err))
	}
	if resp == nil || resp.Context == nil {
		return "", nil
	}
	return *resp.Context, nil
}

// AddMessages appends messages to a thread.
func (c *Client) AddMessages(ctx context.Context, threadID string, msgs []seer.MemoryMessage) error {
	req := &zepsdk.AddThreadMessagesRequest{Messages: make([]*zepsdk.Message, len(msgs))}
	for i, m := range msgs {
		msg := &zepsdk.Message{Role: zepsdk.RoleType(m.Role), Content: m.Content}
		if m.Name != "" {
			msg.Name = zepsdk.String(m.Name)
		}
		req.Messages[i] = msg
	}
	if _, err := c.api.Thread.AddMessages(ctx, threadID, req); err != nil {
		if isNotFound(err) {
			return seer.ErrThreadNotFound
		}
		return fmt.Errorf("zep: add messages: %w", c.wrap(err))
	}
	return nil
}

// SearchGraph searches the user's knowledge graph. Edges yield facts, nodes
// yield entity summaries.
func (c *Client) SearchGraph(ctx context.Context, userID, query, scope string, limit int) ([]string, error) {
	if scope != seer.ScopeEdges && scope != seer.ScopeNodes {
		return nil, fmt.Errorf("zep: unknown search scope %q", scope)
	}
	sc := zepsdk.GraphSearchScope(scope)
	resp, err := c.api.Graph.Search(ctx, &zepsdk.GraphSearchQuery{
		UserID: zepsdk.String(userID),
		Query:  query,
		Scope:  &sc,
		Limit:  zepsdk.Int(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("zep: graph search: %w", c.wrap(err))
	}

	var out []string
	if scope == seer.ScopeEdges {
		for _, e := range resp.Edges {
			if e != nil {
				out = append(out, e.Fact)
			}
		}
	} else {
		for _, n := range resp.Nodes {
			if n != nil {
				out = append(out, n.Summary)
			}
		}
	}
	return out, nil
}

// wrap turns SDK status errors into *seer.ErrHTTP so callers see one error
// shape for every remote API.
func (c *Client) wrap(err error) error {
	var apiErr *core.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	c.logger.Debug("zep: request failed", "status", apiErr.StatusCode)
	return &seer.ErrHTTP{Status: apiErr.StatusCode, Body: apiErr.Error()}
}

func isNotFound(err error) bool {
	var apiErr *core.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// isConflict reports an "already exists" answer. Zep uses 400 for some of
// these, so the message is checked too.
func isConflict(err error) bool {
	var apiErr *core.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict ||
		(apiErr.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Error()), "already exists"))
}
