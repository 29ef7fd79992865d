package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nevindra/seer"
)

func TestSearchQuery(t *testing.T) {
	sql, args, err := searchQuery("u1", "career  100%_sure", seer.ScopeEdges, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "m.content ILIKE $3 AND m.content ILIKE $4") || !strings.HasSuffix(sql, "LIMIT $5") {
		t.Errorf("sql = %s", sql)
	}
	want := []any{"u1", "user", "%career%", `%100\%\_sure%`, 3}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}

	_, args, err = searchQuery("u1", "", seer.ScopeNodes, 5)
	if err != nil {
		t.Fatal(err)
	}
	if args[1] != "assistant" || len(args) != 3 {
		t.Errorf("args = %v", args)
	}

	if _, _, err := searchQuery("u1", "x", "episodes", 3); err == nil {
		t.Error("unknown scope should fail")
	}
}

// testStore connects to SEER_TEST_POSTGRES_DSN and skips when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SEER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SEER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	s := New(pool)
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE seer_messages, seer_threads`); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.ThreadContext(ctx, "u1"); !errors.Is(err, seer.ErrThreadNotFound) {
		t.Fatalf("err = %v, want ErrThreadNotFound", err)
	}
	if err := s.CreateThread(ctx, "u1", "u1", "Ann"); err != nil {
		t.Fatal(err)
	}
	msgs := []seer.MemoryMessage{
		{Role: "user", Name: "Ann", Content: "Asked about career change"},
		{Role: "assistant", Content: "Career Path spread: The Chariot"},
	}
	if err := s.AddMessages(ctx, "u1", msgs); err != nil {
		t.Fatal(err)
	}

	got, err := s.ThreadContext(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "user: Asked about career change\nassistant: Career Path spread: The Chariot"; got != want {
		t.Errorf("context = %q", got)
	}

	facts, err := s.SearchGraph(ctx, "u1", "CAREER", seer.ScopeEdges, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Asked about career change"}, facts); diff != "" {
		t.Errorf("facts (-want +got):\n%s", diff)
	}
}
