package seer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestGateway(t *testing.T, store MemoryStore, llm *scriptedLLM) *MemoryGateway {
	t.Helper()
	return NewMemoryGateway(store, newTestExtractor(t, llm))
}

func TestFetchContextFallsBackToName(t *testing.T) {
	tests := map[string]*memStore{
		"no thread": newMemStore(),
		"store down": func() *memStore {
			s := newMemStore()
			s.fetchErr = errBoom
			return s
		}(),
		"empty thread": func() *memStore {
			s := newMemStore()
			_ = s.CreateThread(context.Background(), "u1", "u1", "Ann")
			return s
		}(),
	}
	for name, store := range tests {
		t.Run(name, func(t *testing.T) {
			g := newTestGateway(t, store, newScriptedLLM())
			// Fetching twice gives the same answer.
			for i := 0; i < 2; i++ {
				if got := g.FetchContext(context.Background(), "u1", "Ann"); got != "User name: Ann" {
					t.Errorf("context = %q", got)
				}
			}
		})
	}
}

func TestFetchContextIncludesMemory(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	_ = store.CreateThread(ctx, "u1", "u1", "Ann")
	_ = store.AddMessages(ctx, "u1", []MemoryMessage{{Role: "user", Content: "asked about love"}})

	g := newTestGateway(t, store, newScriptedLLM())
	want := "User name: Ann\nContext: user: asked about love"
	if got := g.FetchContext(ctx, "u1", "Ann"); got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

func TestCommitBootstrapsThreadOnce(t *testing.T) {
	store := newMemStore()
	llm := newScriptedLLM().
		on("summary", `{"user_message":"-","message_to_user":"first"}`).
		on("summary", `{"user_message":"-","message_to_user":"second"}`)
	g := newTestGateway(t, store, llm)
	id := Identity{UserID: "u1", Name: "Ann"}

	for _, msg := range []string{"one", "two"} {
		if err := g.Commit(context.Background(), id, msg, "reply"); err != nil {
			t.Fatal(err)
		}
	}
	if store.created != 1 {
		t.Errorf("threads created = %d, want 1", store.created)
	}
	want := []MemoryMessage{
		{Role: "user", Name: "Ann", Content: "one"},
		{Role: "assistant", Content: "first"},
		{Role: "user", Name: "Ann", Content: "two"},
		{Role: "assistant", Content: "second"},
	}
	if diff := cmp.Diff(want, store.messages("u1")); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestCommitFailures(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		store := newMemStore()
		store.addErr = errBoom
		g := newTestGateway(t, store, newScriptedLLM().on("summary", `{"user_message":"-","message_to_user":"x"}`))
		err := g.Commit(context.Background(), Identity{UserID: "u1"}, "hi", "reply")
		if !errors.Is(err, ErrCommitFailed) || !errors.Is(err, errBoom) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("summary", func(t *testing.T) {
		store := newMemStore()
		g := newTestGateway(t, store, newScriptedLLM().fail("summary", errBoom))
		err := g.Commit(context.Background(), Identity{UserID: "u1"}, "hi", "reply")
		if !errors.Is(err, ErrCommitFailed) {
			t.Errorf("err = %v", err)
		}
		if len(store.messages("u1")) != 0 {
			t.Error("messages written without a summary")
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		store := newMemStore()
		g := newTestGateway(t, store, newScriptedLLM().on("summary", `{"user_message":"-","message_to_user":"x"}`))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := g.Commit(ctx, Identity{UserID: "u1"}, "hi", "reply")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if store.created != 0 {
			t.Error("thread created for a cancelled commit")
		}
	})
}

// orderStore records the order of AddMessages per thread and fails the test
// when two writes for the same thread overlap.
type orderStore struct {
	*memStore
	mu     sync.Mutex
	active map[string]bool
	t      *testing.T
}

func (s *orderStore) AddMessages(ctx context.Context, threadID string, msgs []MemoryMessage) error {
	s.mu.Lock()
	if s.active[threadID] {
		s.t.Errorf("overlapping writes to %s", threadID)
	}
	s.active[threadID] = true
	s.mu.Unlock()

	err := s.memStore.AddMessages(ctx, threadID, msgs)

	s.mu.Lock()
	s.active[threadID] = false
	s.mu.Unlock()
	return err
}

func TestCommitSerializesPerUser(t *testing.T) {
	store := &orderStore{memStore: newMemStore(), active: map[string]bool{}, t: t}
	_ = store.CreateThread(context.Background(), "u1", "u1", "")
	llm := newScriptedLLM()
	const n = 20
	for i := 0; i < n; i++ {
		llm.on("summary", `{"user_message":"-","message_to_user":"reply"}`)
	}
	g := newTestGateway(t, store, llm)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Commit(context.Background(), Identity{UserID: "u1"}, fmt.Sprint("msg ", i), "reply"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	msgs := store.messages("u1")
	if len(msgs) != 2*n {
		t.Fatalf("got %d messages, want %d", len(msgs), 2*n)
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Role != "user" || msgs[i+1].Role != "assistant" {
			t.Fatalf("entries %d/%d interleaved: %+v %+v", i, i+1, msgs[i], msgs[i+1])
		}
	}
	if len(g.locks.locks) != 0 {
		t.Errorf("%d user locks left behind", len(g.locks.locks))
	}
}

func TestMemorySearchTool(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 30; i++ {
		store.facts["u1/edges"] = append(store.facts["u1/edges"], fmt.Sprint("fact ", i))
	}
	store.facts["u1/nodes"] = []string{"Lisbon", "Ann's sister"}
	tool := NewMemorySearchTool(store)
	ctx := WithThreadID(context.Background(), "u1")

	tests := []struct {
		name  string
		tool  string
		args  string
		lines int
		err   string
	}{
		{"default limit", "search_facts", `{"query":"work"}`, DefaultSearchLimit, ""},
		{"negative limit", "search_facts", `{"query":"work","limit":-2}`, DefaultSearchLimit, ""},
		{"capped limit", "search_facts", `{"query":"work","limit":500}`, MaxSearchLimit, ""},
		{"explicit limit", "search_nodes", `{"query":"family","limit":5}`, 2, ""},
		{"no query", "search_nodes", `{"limit":5}`, 0, "query is required"},
		{"bad args", "search_nodes", `[1]`, 0, "invalid args"},
		{"unknown", "search_everything", `{"query":"x"}`, 0, "unknown tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Execute(ctx, tt.tool, json.RawMessage(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if tt.err != "" {
				if !strings.Contains(res.Error, tt.err) {
					t.Errorf("Error = %q, want %q", res.Error, tt.err)
				}
				return
			}
			if got := len(strings.Split(res.Content, "\n")); got != tt.lines {
				t.Errorf("got %d results, want %d:\n%s", got, tt.lines, res.Content)
			}
		})
	}
}

func TestMemorySearchToolNeedsThread(t *testing.T) {
	tool := NewMemorySearchTool(newMemStore())
	res, err := tool.Execute(context.Background(), "search_facts", json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Error("expected an error without a thread on the context")
	}
}
