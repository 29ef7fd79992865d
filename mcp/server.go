package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ToolHandler is a tool that the server exposes to clients.
type ToolHandler struct {
	Definition ToolDefinition
	// Execute runs on tools/call. Failures are reported in-band with
	// ErrorResult, not as protocol errors.
	Execute func(ctx context.Context, args json.RawMessage) ToolCallResult
}

// Resource is a readable document exposed via resources/list and resources/read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Read        func() string
}

// Server is an MCP server speaking JSON-RPC 2.0 over a line stream.
// Register tools and resources before calling Serve.
type Server struct {
	name    string
	version string

	tools     []ToolHandler
	resources []Resource

	reader io.Reader
	writer io.Writer
	logger *slog.Logger
	mu     sync.Mutex // serializes writes
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithIO replaces stdin/stdout as the transport.
func WithIO(r io.Reader, w io.Writer) ServerOption {
	return func(s *Server) { s.reader, s.writer = r, w }
}

// WithServerLogger sets the logger for transport failures. Never log to
// stdout: it is the protocol channel.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// New creates an MCP server reading stdin and writing stdout.
func New(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		name:    name,
		version: version,
		reader:  os.Stdin,
		writer:  os.Stdout,
		logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddTool registers a tool handler.
func (s *Server) AddTool(h ToolHandler) {
	s.tools = append(s.tools, h)
}

// AddResource registers a resource.
func (s *Server) AddResource(r Resource) {
	s.resources = append(s.resources, r)
}

// Serve reads requests until the input closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64<<10), 10<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleMessage(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcp: read: %w", err)
	}
	return nil
}

// handleMessage dispatches a single message or a batch array.
func (s *Server) handleMessage(ctx context.Context, data []byte) {
	if data[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			s.writeResponse(*s.respondError(json.RawMessage("null"), errCodeParse, "parse error"))
			return
		}
		for _, raw := range batch {
			s.handleSingle(ctx, raw)
		}
		return
	}
	s.handleSingle(ctx, data)
}

func (s *Server) handleSingle(ctx context.Context, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeResponse(*s.respondError(json.RawMessage("null"), errCodeParse, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !req.isNotification() {
			s.writeResponse(*s.respondError(req.ID, errCodeInvalidRequest, "invalid request"))
		}
		return
	}
	if resp := s.dispatch(ctx, &req); resp != nil {
		s.writeResponse(*resp)
	}
}

// dispatch returns nil for notifications.
func (s *Server) dispatch(ctx context.Context, req *request) *response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		return s.respond(req.ID, struct{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	default:
		if req.isNotification() {
			return nil
		}
		return s.respondError(req.ID, errCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *request) *response {
	caps := serverCapabilities{}
	if len(s.tools) > 0 {
		caps.Tools = &capability{}
	}
	if len(s.resources) > 0 {
		caps.Resources = &capability{}
	}
	return s.respond(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    caps,
		ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
	})
}

func (s *Server) handleToolsList(req *request) *response {
	defs := make([]ToolDefinition, len(s.tools))
	for i, t := range s.tools {
		defs[i] = t.Definition
	}
	return s.respond(req.ID, toolsListResult{Tools: defs})
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.respondError(req.ID, errCodeInvalidParams, "invalid params: "+err.Error())
	}
	for _, t := range s.tools {
		if t.Definition.Name == params.Name {
			return s.respond(req.ID, s.execute(ctx, t, params.Arguments))
		}
	}
	return s.respond(req.ID, ErrorResult("unknown tool: "+params.Name))
}

// execute runs a handler, turning a panic into an error result.
func (s *Server) execute(ctx context.Context, t ToolHandler, args json.RawMessage) (res ToolCallResult) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("mcp tool panicked", "tool", t.Definition.Name, "panic", p)
			res = ErrorResult(fmt.Sprintf("tool %s panicked: %v", t.Definition.Name, p))
		}
	}()
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return t.Execute(ctx, args)
}

func (s *Server) handleResourcesList(req *request) *response {
	defs := make([]resourceDef, len(s.resources))
	for i, r := range s.resources {
		defs[i] = resourceDef{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MimeType}
	}
	return s.respond(req.ID, resourcesListResult{Resources: defs})
}

func (s *Server) handleResourcesRead(req *request) *response {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.respondError(req.ID, errCodeInvalidParams, "invalid params: "+err.Error())
	}
	for _, r := range s.resources {
		if r.URI == params.URI {
			return s.respond(req.ID, resourceReadResult{
				Contents: []resourceContent{{URI: r.URI, MimeType: r.MimeType, Text: r.Read()}},
			})
		}
	}
	return s.respondError(req.ID, errCodeInvalidParams, "resource not found: "+params.URI)
}

func (s *Server) respond(id json.RawMessage, result any) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) respondError(id json.RawMessage, code int, message string) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func (s *Server) writeResponse(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal response", "err", err)
		data, _ = json.Marshal(s.respondError(resp.ID, errCodeInternal, "internal error"))
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		s.logger.Error("mcp write response", "err", err)
	}
}
