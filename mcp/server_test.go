package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// session feeds lines to a fresh run of srv and decodes every response line.
func session(t *testing.T, srv *Server, lines ...string) []inbound {
	t.Helper()
	var out bytes.Buffer
	srv.reader = strings.NewReader(strings.Join(lines, "\n") + "\n")
	srv.writer = &out
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var resps []inbound
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r inbound
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("response %q: %v", sc.Text(), err)
		}
		resps = append(resps, r)
	}
	return resps
}

func one(t *testing.T, srv *Server, line string) inbound {
	t.Helper()
	resps := session(t, srv, line)
	if len(resps) != 1 {
		t.Fatalf("got %d responses, want 1", len(resps))
	}
	return resps[0]
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

// oracle is a small server with one tool that echoes the question and one
// resource.
func oracle() *Server {
	srv := New("oracle", "0.1.0", WithServerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "ask_oracle",
			Description: "Answer a yes/no question",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"question":{"type":"string"}},"required":["question"]}`),
		},
		Execute: func(_ context.Context, args json.RawMessage) ToolCallResult {
			var in struct {
				Question string `json:"question"`
			}
			if err := json.Unmarshal(args, &in); err != nil || in.Question == "" {
				return ErrorResult("question is required")
			}
			return TextResult("yes: " + in.Question)
		},
	})
	srv.AddTool(ToolHandler{
		Definition: ToolDefinition{Name: "shuffle"},
		Execute:    func(context.Context, json.RawMessage) ToolCallResult { panic("deck jammed") },
	})
	srv.AddResource(Resource{
		URI: "oracle://spreads", Name: "Spreads", MimeType: "text/markdown",
		Read: func() string { return "# Spreads\n- Single Card" },
	})
	return srv
}

func TestHandshake(t *testing.T) {
	resps := session(t, oracle(),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"seer","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2 (the notification gets none)", len(resps))
	}
	hello := decode[initializeResult](t, resps[0].Result)
	if hello.ProtocolVersion != protocolVersion || hello.ServerInfo.Name != "oracle" {
		t.Errorf("initialize = %+v", hello)
	}
	if hello.Capabilities.Tools == nil || hello.Capabilities.Resources == nil {
		t.Error("tools and resources capabilities should be advertised")
	}
	if string(resps[1].ID) != "2" || resps[1].Error != nil {
		t.Errorf("ping = %+v", resps[1])
	}
}

func TestHandshakeWithoutCapabilities(t *testing.T) {
	srv := New("bare", "0", WithServerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r := one(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	caps := decode[initializeResult](t, r.Result).Capabilities
	if caps.Tools != nil || caps.Resources != nil {
		t.Errorf("capabilities = %+v, want none", caps)
	}
}

func TestToolsListAndCall(t *testing.T) {
	srv := oracle()
	list := decode[toolsListResult](t, one(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`).Result)
	if len(list.Tools) != 2 || list.Tools[0].Name != "ask_oracle" {
		t.Fatalf("tools = %+v", list.Tools)
	}

	tests := []struct {
		name    string
		params  string
		want    string
		isError bool
	}{
		{"answer", `{"name":"ask_oracle","arguments":{"question":"will it rain?"}}`, "yes: will it rain?", false},
		{"missing arguments", `{"name":"ask_oracle"}`, "question is required", true},
		{"unknown tool", `{"name":"tea_leaves","arguments":{}}`, "unknown tool: tea_leaves", true},
		{"panic", `{"name":"shuffle"}`, "deck jammed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := one(t, srv, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":`+tt.params+`}`)
			if r.Error != nil {
				t.Fatalf("protocol error %v; tool failures belong in the result", r.Error)
			}
			res := decode[ToolCallResult](t, r.Result)
			if res.IsError != tt.isError || !strings.Contains(res.Text(), tt.want) {
				t.Errorf("result = %+v, want %q (isError %v)", res, tt.want, tt.isError)
			}
		})
	}
}

func TestResources(t *testing.T) {
	srv := oracle()
	list := decode[resourcesListResult](t, one(t, srv, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`).Result)
	if len(list.Resources) != 1 || list.Resources[0].URI != "oracle://spreads" {
		t.Fatalf("resources = %+v", list.Resources)
	}
	read := decode[resourceReadResult](t, one(t, srv,
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"oracle://spreads"}}`).Result)
	if len(read.Contents) != 1 || read.Contents[0].Text != "# Spreads\n- Single Card" {
		t.Errorf("contents = %+v", read.Contents)
	}
}

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		code int
	}{
		{"parse", `not-json`, errCodeParse},
		{"bad batch", `[not-json`, errCodeParse},
		{"version", `{"jsonrpc":"1.0","id":3,"method":"ping"}`, errCodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"tarot/shuffle"}`, errCodeMethodNotFound},
		{"missing resource", `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"oracle://none"}}`, errCodeInvalidParams},
		{"bad call params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"x"}`, errCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := one(t, oracle(), tt.line)
			if r.Error == nil || r.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", r.Error, tt.code)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	resps := session(t, oracle(),
		`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/cancelled"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`)
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	for _, r := range resps {
		if r.Error != nil {
			t.Errorf("unexpected error %v", r.Error)
		}
	}
}

func TestUnknownNotificationIsIgnored(t *testing.T) {
	if resps := session(t, oracle(), `{"jsonrpc":"2.0","method":"notifications/progress"}`); len(resps) != 0 {
		t.Errorf("got %d responses, want none", len(resps))
	}
}
