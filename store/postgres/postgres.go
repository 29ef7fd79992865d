// Package postgres implements seer.MemoryStore on PostgreSQL.
//
// The store accepts an externally-owned *pgxpool.Pool. The caller creates
// and closes the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/seer"
)

// ContextWindow is how many of the newest thread entries ThreadContext
// renders.
const ContextWindow = 10

// Store implements seer.MemoryStore backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

var _ seer.MemoryStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: seer.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Init creates the tables and indexes. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seer_threads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS seer_messages (
			id BIGSERIAL PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES seer_threads(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS seer_messages_thread_idx ON seer_messages(thread_id, id)`,
		`CREATE INDEX IF NOT EXISTS seer_threads_user_idx ON seer_threads(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	s.logger.Info("postgres: init completed")
	return nil
}

// CreateThread inserts a thread owned by userID. An existing thread is left
// unchanged.
func (s *Store) CreateThread(ctx context.Context, threadID, userID, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seer_threads (id, user_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		threadID, userID, name)
	if err != nil {
		return fmt.Errorf("postgres: create thread: %w", err)
	}
	return nil
}

// ThreadContext renders the newest ContextWindow entries, oldest first, one
// "role: content" line each.
func (s *Store) ThreadContext(ctx context.Context, threadID string) (string, error) {
	if err := s.threadExists(ctx, s.pool, threadID); err != nil {
		return "", err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM (
			SELECT id, role, content FROM seer_messages
			WHERE thread_id = $1
			ORDER BY id DESC
			LIMIT $2
		 ) recent ORDER BY id`,
		threadID, ContextWindow)
	if err != nil {
		return "", fmt.Errorf("postgres: thread context: %w", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var role, content string
		err := row.Scan(&role, &content)
		return role + ": " + content, err
	})
	if err != nil {
		return "", fmt.Errorf("postgres: scan messages: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// AddMessages appends msgs to the thread in one transaction.
func (s *Store) AddMessages(ctx context.Context, threadID string, msgs []seer.MemoryMessage) error {
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.threadExists(ctx, tx, threadID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`INSERT INTO seer_messages (thread_id, role, name, content) VALUES ($1, $2, $3, $4)`,
			threadID, m.Role, m.Name, m.Content)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert messages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	s.logger.Debug("postgres: add messages ok", "thread_id", threadID, "count", len(msgs), "duration", time.Since(start))
	return nil
}

// SearchGraph returns the user's entries that contain every word of query
// (case-insensitive), newest first. ScopeEdges searches user-side entries,
// ScopeNodes assistant-side entries.
func (s *Store) SearchGraph(ctx context.Context, userID, query, scope string, limit int) ([]string, error) {
	sql, args, err := searchQuery(userID, query, scope, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search graph: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan results: %w", err)
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) threadExists(ctx context.Context, q querier, threadID string) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM seer_threads WHERE id = $1`, threadID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return seer.ErrThreadNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: get thread: %w", err)
	}
	return nil
}

// searchQuery builds the graph search statement: one ILIKE clause per query
// word.
func searchQuery(userID, query, scope string, limit int) (string, []any, error) {
	var role string
	switch scope {
	case seer.ScopeEdges:
		role = "user"
	case seer.ScopeNodes:
		role = "assistant"
	default:
		return "", nil, fmt.Errorf("postgres: unknown search scope %q", scope)
	}

	var b strings.Builder
	b.WriteString(`SELECT m.content FROM seer_messages m
		 JOIN seer_threads t ON t.id = m.thread_id
		 WHERE t.user_id = $1 AND m.role = $2`)
	args := []any{userID, role}
	for _, w := range strings.Fields(query) {
		args = append(args, "%"+escapeLike(w)+"%")
		b.WriteString(" AND m.content ILIKE $" + strconv.Itoa(len(args)))
	}
	args = append(args, limit)
	b.WriteString(" ORDER BY m.id DESC LIMIT $" + strconv.Itoa(len(args)))
	return b.String(), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
