package seer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nevindra/seer/mcp"
	"github.com/nevindra/seer/tarot"
)

func tarotTools(t *testing.T) *MCPTools {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	srv := mcp.New(tarot.ServerName, tarot.ServerVersion, mcp.WithIO(toServerR, toClientW), mcp.WithServerLogger(discard))
	tarot.Register(srv, tarot.NewReader(tarot.NewDeck()))
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = srv.Serve(context.Background())
		toClientW.Close()
	}()

	c := mcp.NewClient(toClientR, toServerW, mcp.WithClientLogger(discard))
	t.Cleanup(func() {
		c.Close()
		<-served
	})
	ctx := context.Background()
	if _, err := c.Initialize(ctx, "seer-test", "0"); err != nil {
		t.Fatal(err)
	}
	tools, err := NewMCPTools(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	return tools
}

func TestMCPToolsDefinitions(t *testing.T) {
	tools := tarotTools(t)
	reg, err := NewToolRegistry(tools, NewMemorySearchTool(newMemStore()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range reg.AllDefinitions() {
		names = append(names, d.Name)
		if !json.Valid(d.Parameters) {
			t.Errorf("%s: invalid parameter schema", d.Name)
		}
	}
	want := "perform_reading,list_available_spreads,get_card_info,list_all_cards,search_cards," +
		"find_similar_cards,get_database_analytics,get_random_cards,search_facts,search_nodes"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("tools = %s\nwant    %s", got, want)
	}
}

func TestMCPToolsExecute(t *testing.T) {
	tools := tarotTools(t)
	ctx := context.Background()

	res, err := tools.Execute(ctx, "perform_reading", json.RawMessage(`{"spreadType":"celtic_cross","question":"career"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Error != "" || !strings.Contains(res.Content, "Celtic Cross") {
		t.Errorf("reading = %+v", res)
	}

	// In-band failures come back as tool errors, not Go errors.
	res, err = tools.Execute(ctx, "perform_reading", json.RawMessage(`{"spreadType":"tea_leaves"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Errorf("expected a tool error, got %+v", res)
	}
}
