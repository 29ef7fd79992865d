package seer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type mockTool struct{}

func (m mockTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "greet", Description: "Say hello"}}
}

func (m mockTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "hello from " + name}, nil
}

func TestToolRegistry(t *testing.T) {
	reg, err := NewToolRegistry(mockTool{}, NewMemorySearchTool(newMemStore()))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, d := range reg.AllDefinitions() {
		names = append(names, d.Name)
	}
	if got, want := strings.Join(names, ","), "greet,search_facts,search_nodes"; got != want {
		t.Fatalf("definitions = %s, want %s", got, want)
	}

	res, err := reg.Execute(context.Background(), "greet", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "hello from greet" {
		t.Errorf("expected 'hello from greet', got %q", res.Content)
	}

	res, _ = reg.Execute(context.Background(), "nonexistent", nil)
	if res.Error == "" {
		t.Error("expected error for unknown tool")
	}
}

func TestToolRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewToolRegistry(mockTool{}, mockTool{}); err == nil {
		t.Fatal("expected duplicate tool names to be rejected")
	}
}
