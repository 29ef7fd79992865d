package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nevindra/seer"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func exchange(user, assistant string) []seer.MemoryMessage {
	return []seer.MemoryMessage{
		{Role: "user", Name: "Ann", Content: user},
		{Role: "assistant", Content: assistant},
	}
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	defer s.Close()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestMissingThread(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.ThreadContext(ctx, "nobody"); !errors.Is(err, seer.ErrThreadNotFound) {
		t.Errorf("ThreadContext err = %v, want ErrThreadNotFound", err)
	}
	if err := s.AddMessages(ctx, "nobody", exchange("a", "b")); !errors.Is(err, seer.ErrThreadNotFound) {
		t.Errorf("AddMessages err = %v, want ErrThreadNotFound", err)
	}
}

func TestCreateThreadIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for range 2 {
		if err := s.CreateThread(ctx, "u1", "u1", "Ann"); err != nil {
			t.Fatal(err)
		}
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("threads = %d, want 1", n)
	}
}

func TestThreadContext(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.CreateThread(ctx, "u1", "u1", "Ann"); err != nil {
		t.Fatal(err)
	}

	got, err := s.ThreadContext(ctx, "u1")
	if err != nil || got != "" {
		t.Fatalf("empty thread: %q, %v", got, err)
	}

	if err := s.AddMessages(ctx, "u1", exchange("Three card reading.", "Drew The Fool.")); err != nil {
		t.Fatal(err)
	}
	got, err = s.ThreadContext(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := "user: Three card reading.\nassistant: Drew The Fool."
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

func TestThreadContextKeepsNewestWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.CreateThread(ctx, "u1", "u1", "Ann"); err != nil {
		t.Fatal(err)
	}
	for i := range 8 {
		if err := s.AddMessages(ctx, "u1", exchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ThreadContext(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(got, "\n")
	if len(lines) != ContextWindow {
		t.Fatalf("got %d lines, want %d", len(lines), ContextWindow)
	}
	if lines[0] != "user: q3" || lines[len(lines)-1] != "assistant: a7" {
		t.Errorf("window = %q ... %q", lines[0], lines[len(lines)-1])
	}
}

func TestSearchGraph(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		if err := s.CreateThread(ctx, id, id, ""); err != nil {
			t.Fatal(err)
		}
	}
	steps := []struct {
		thread          string
		user, assistant string
	}{
		{"u1", "Asked about career change", "Career Path spread: The Chariot"},
		{"u1", "Born in Paris, asks about love", "Relationship Cross: The Lovers"},
		{"u1", "Career worries again", "Three Card: Eight of Pentacles"},
		{"u2", "Career question from someone else", "Single Card: The Sun"},
	}
	for _, st := range steps {
		if err := s.AddMessages(ctx, st.thread, exchange(st.user, st.assistant)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		query string
		scope string
		limit int
		want  []string
	}{
		{"facts newest first", "career", seer.ScopeEdges, 5, []string{"Career worries again", "Asked about career change"}},
		{"every word must match", "CAREER change", seer.ScopeEdges, 5, []string{"Asked about career change"}},
		{"limit", "career", seer.ScopeEdges, 1, []string{"Career worries again"}},
		{"nodes are assistant entries", "the lovers", seer.ScopeNodes, 5, []string{"Relationship Cross: The Lovers"}},
		{"no match", "astrology", seer.ScopeNodes, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchGraph(ctx, "u1", tt.query, tt.scope, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("results (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.SearchGraph(ctx, "u1", "x", "episodes", 3); err == nil {
		t.Error("unknown scope should fail")
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.CreateThread(ctx, "u1", "u1", ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.AddMessages(ctx, "u1", exchange(fmt.Sprintf("q%d", i), "a"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 20 {
		t.Errorf("messages = %d, want 20", n)
	}
}
