// Package sqlite implements seer.MemoryStore using pure-Go SQLite. Zero CGO
// required; intended for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nevindra/seer"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ContextWindow is how many of the newest thread entries ThreadContext
// renders.
const ContextWindow = 10

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. If not set, no logs
// are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements seer.MemoryStore backed by a local SQLite file. Graph
// search is a brute-force scan over the user's entries.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ seer.MemoryStore = (*Store)(nil)

// New creates a Store using a SQLite file at dbPath. All goroutines share one
// connection so concurrent writers never hit SQLITE_BUSY.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: seer.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the threads and messages tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES threads(id),
			role TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id)`,
	}
	for _, ddl := range stmts {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			s.logger.Error("sqlite: init failed", "error", err)
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// CreateThread inserts a thread owned by userID. An existing thread is left
// unchanged.
func (s *Store) CreateThread(ctx context.Context, threadID, userID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO threads (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		threadID, userID, name, time.Now().UnixNano(),
	)
	if err != nil {
		s.logger.Error("sqlite: create thread failed", "id", threadID, "error", err)
		return fmt.Errorf("create thread: %w", err)
	}
	s.logger.Debug("sqlite: create thread ok", "id", threadID, "user", userID)
	return nil
}

// ThreadContext renders the newest ContextWindow entries, oldest first, one
// "role: content" line each.
func (s *Store) ThreadContext(ctx context.Context, threadID string) (string, error) {
	if err := s.threadExists(ctx, threadID); err != nil {
		return "", err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages
		 WHERE thread_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		threadID, ContextWindow,
	)
	if err != nil {
		return "", fmt.Errorf("thread context: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return "", fmt.Errorf("scan message: %w", err)
		}
		lines = append(lines, role+": "+content)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n"), nil
}

// AddMessages appends msgs to the thread in one transaction.
func (s *Store) AddMessages(ctx context.Context, threadID string, msgs []seer.MemoryMessage) error {
	start := time.Now()
	if err := s.threadExists(ctx, threadID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	for i, m := range msgs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, role, name, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), threadID, m.Role, m.Name, m.Content, now+int64(i),
		)
		if err != nil {
			s.logger.Error("sqlite: add messages failed", "thread_id", threadID, "error", err)
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("sqlite: add messages ok", "thread_id", threadID, "count", len(msgs), "duration", time.Since(start))
	return nil
}

// SearchGraph returns the user's entries that contain every word of query,
// newest first. ScopeEdges searches user-side entries (facts), ScopeNodes
// assistant-side entries (summaries).
func (s *Store) SearchGraph(ctx context.Context, userID, query, scope string, limit int) ([]string, error) {
	role, err := scopeRole(scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.content FROM messages m
		 JOIN threads t ON t.id = m.thread_id
		 WHERE t.user_id = ? AND m.role = ?
		 ORDER BY m.created_at DESC, m.rowid DESC`,
		userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("search graph: %w", err)
	}
	defer rows.Close()

	words := strings.Fields(strings.ToLower(query))
	var out []string
	scanned := 0
	for rows.Next() && len(out) < limit {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		scanned++
		if matchesAll(strings.ToLower(content), words) {
			out = append(out, content)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	s.logger.Debug("sqlite: search graph ok", "user", userID, "scope", scope, "scanned", scanned, "returned", len(out))
	return out, nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	return s.db.Close()
}

func (s *Store) threadExists(ctx context.Context, threadID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM threads WHERE id = ?`, threadID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return seer.ErrThreadNotFound
	}
	if err != nil {
		return fmt.Errorf("get thread: %w", err)
	}
	return nil
}

func scopeRole(scope string) (string, error) {
	switch scope {
	case seer.ScopeEdges:
		return "user", nil
	case seer.ScopeNodes:
		return "assistant", nil
	}
	return "", fmt.Errorf("unknown search scope %q", scope)
}

func matchesAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}
