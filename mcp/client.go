package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by calls made after the transport has shut down.
var ErrClosed = errors.New("mcp: client closed")

// Client is an MCP client over a line stream, usually the stdio of a child
// process started with Spawn. Calls are safe for concurrent use; responses
// are matched to requests by ID.
type Client struct {
	w   io.WriteCloser
	cmd *exec.Cmd

	wmu     sync.Mutex
	mu      sync.Mutex
	pending map[string]chan inbound
	nextID  atomic.Int64

	done    chan struct{}
	readErr error

	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger for transport events.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps an existing transport. The client owns w and closes it on
// Close; r is read until EOF.
func NewClient(r io.Reader, w io.WriteCloser, opts ...ClientOption) *Client {
	c := &Client{
		w:       w,
		pending: make(map[string]chan inbound),
		done:    make(chan struct{}),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	go c.readLoop(r)
	return c
}

// Spawn starts command as a child process and speaks MCP over its stdio.
// The child's stderr is passed through to ours. ctx bounds the lifetime of
// the process, not just its start.
func Spawn(ctx context.Context, command string, args []string, env []string, opts ...ClientOption) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", command, err)
	}
	c := NewClient(stdout, stdin, opts...)
	c.cmd = cmd
	return c, nil
}

func (c *Client) readLoop(r io.Reader) {
	defer close(c.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 10<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warn("mcp: dropping unparsable message", "err", err)
			continue
		}
		if len(msg.ID) == 0 || string(msg.ID) == "null" {
			// server notification or an error without an ID
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[string(msg.ID)]
		delete(c.pending, string(msg.ID))
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
	c.readErr = scanner.Err()
}

// call sends a request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	ch := make(chan inbound, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(request{JSONRPC: "2.0", ID: json.RawMessage(id), Method: method}, params); err != nil {
		return err
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return fmt.Errorf("mcp: %s: %w", method, msg.Error)
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("mcp: %s: decode result: %w", method, err)
		}
		return nil
	case <-c.done:
		if c.readErr != nil {
			return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify sends a notification (no ID, no response).
func (c *Client) notify(method string, params any) error {
	return c.send(request{JSONRPC: "2.0", Method: method}, params)
}

func (c *Client) send(req request, params any) error {
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("mcp: %s: encode params: %w", req.Method, err)
		}
		req.Params = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mcp: %s: encode: %w", req.Method, err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("mcp: %s: write: %w", req.Method, err)
	}
	return nil
}

// Initialize performs the MCP handshake and returns the server's identity.
func (c *Client) Initialize(ctx context.Context, name, version string) (ServerInfo, error) {
	var res initializeResult
	err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    struct{}{},
		ClientInfo:      clientInfo{Name: name, Version: version},
	}, &res)
	if err != nil {
		return ServerInfo{}, err
	}
	if err := c.notify("notifications/initialized", nil); err != nil {
		return ServerInfo{}, err
	}
	return res.ServerInfo, nil
}

// ListTools returns the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	var res toolsListResult
	if err := c.call(ctx, "tools/list", struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// CallTool invokes a tool. A tool-level failure comes back as a result with
// IsError set and a nil error.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (ToolCallResult, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var res ToolCallResult
	if err := c.call(ctx, "tools/call", toolCallParams{Name: name, Arguments: args}, &res); err != nil {
		return ToolCallResult{}, err
	}
	return res, nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// Close shuts the transport. For a spawned server it closes stdin, waits
// briefly for the process to exit, and kills it otherwise.
func (c *Client) Close() error {
	err := c.w.Close()
	if c.cmd == nil {
		return err
	}
	exited := make(chan error, 1)
	go func() { exited <- c.cmd.Wait() }()
	select {
	case werr := <-exited:
		if err == nil && werr != nil && !isExitAfterClose(werr) {
			err = werr
		}
	case <-time.After(5 * time.Second):
		_ = c.cmd.Process.Kill()
		<-exited
	}
	return err
}

func isExitAfterClose(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
