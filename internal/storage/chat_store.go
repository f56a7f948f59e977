package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// TurnStore persists conversation turns
type TurnStore interface {
	Save(ctx context.Context, turn *Turn) (int64, error)
	History(ctx context.Context, chatID string) ([]Turn, error)
	RecentSummaries(ctx context.Context, chatID string, n int) ([]string, error)
	Delete(ctx context.Context, chatID string) error
	Exists(ctx context.Context, chatID string) (bool, error)
	List(ctx context.Context, limit int) ([]ChatSummary, error)
	SetTitle(ctx context.Context, chatID, title string) error
	Ping(ctx context.Context) error
}

// lazySchema creates tables on first use and retries on the next call after
// a failure.
type lazySchema struct {
	mu    sync.Mutex
	ready bool
}

func (l *lazySchema) ensure(ctx context.Context, db *sql.DB, stmts []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return nil
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	l.ready = true
	return nil
}

// SQLStore implements TurnStore over database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	schema  lazySchema
	now     func() time.Time
	logger  *log.Logger
}

// NewSQLStore creates a turn store on an open database. The table is
// created on first use.
func NewSQLStore(db *sql.DB, dialect Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = "chats"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid chat table name %q", table)
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		table:   table,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.Default().WithPrefix("storage"),
	}, nil
}

// DB returns the underlying handle, shared with the alert store.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) ready(ctx context.Context) error {
	err := s.schema.ensure(ctx, s.db, s.dialect.turnsDDL(s.table))
	if err != nil {
		s.logger.Warn("chat table unavailable", "table", s.table, "error", err)
	}
	return err
}

// Save appends a turn and returns its id
func (s *SQLStore) Save(ctx context.Context, turn *Turn) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	query := s.dialect.rebind(fmt.Sprintf(
		`INSERT INTO %s (chat_id, query, response, summary, timestamp) VALUES (?, ?, ?, ?, ?) RETURNING id`, s.table))

	var response sql.NullString
	if turn.Response != "" {
		response = sql.NullString{String: turn.Response, Valid: true}
	}
	var summary sql.NullString
	if turn.Summary != nil {
		summary = sql.NullString{String: *turn.Summary, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, query, turn.ChatID, turn.Query, response, summary, turn.Timestamp).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save turn: %w", err)
	}
	turn.ID = id
	return id, nil
}

// History returns every turn of a chat in ascending time order
func (s *SQLStore) History(ctx context.Context, chatID string) ([]Turn, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := s.dialect.rebind(fmt.Sprintf(
		`SELECT id, chat_id, timestamp, query, response, summary FROM %s WHERE chat_id = ? ORDER BY timestamp ASC, id ASC`, s.table))

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t        Turn
			ts       dbTime
			q        sql.NullString
			response sql.NullString
			summary  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ChatID, &ts, &q, &response, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Timestamp = ts.Time
		t.Query = q.String
		t.Response = response.String
		if summary.Valid {
			v := summary.String
			t.Summary = &v
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}
	return turns, nil
}

// RecentSummaries returns up to n non-null response summaries, newest first
func (s *SQLStore) RecentSummaries(ctx context.Context, chatID string, n int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := s.dialect.rebind(fmt.Sprintf(
		`SELECT summary FROM %s WHERE chat_id = ? AND summary IS NOT NULL ORDER BY timestamp DESC, id DESC LIMIT ?`, s.table))

	rows, err := s.db.QueryContext(ctx, query, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent summaries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Delete removes every turn of a chat
func (s *SQLStore) Delete(ctx context.Context, chatID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	query := s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE chat_id = ?`, s.table))
	if _, err := s.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// Exists reports whether any turn was stored for the chat
func (s *SQLStore) Exists(ctx context.Context, chatID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	query := s.dialect.rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE chat_id = ?`, s.table))
	var count int
	if err := s.db.QueryRowContext(ctx, query, chatID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check chat: %w", err)
	}
	return count > 0, nil
}

// List returns the most recent row of each chat, newest chat first.
// A non-positive limit returns every chat.
func (s *SQLStore) List(ctx context.Context, limit int) ([]ChatSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, chat_id, query, first_query, timestamp, created_at, message_count
		FROM (
			SELECT id, chat_id, query, timestamp,
			       FIRST_VALUE(query) OVER (PARTITION BY chat_id ORDER BY timestamp ASC, id ASC) AS first_query,
			       MIN(timestamp) OVER (PARTITION BY chat_id) AS created_at,
			       COUNT(*) OVER (PARTITION BY chat_id) AS message_count,
			       ROW_NUMBER() OVER (PARTITION BY chat_id ORDER BY timestamp DESC, id DESC) AS rn
			FROM %s
		) latest
		WHERE rn = 1
		ORDER BY timestamp DESC`, s.table)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var (
			c             ChatSummary
			latest, first sql.NullString
			updated       dbTime
			created       dbTime
		)
		if err := rows.Scan(&c.ID, &c.ChatID, &latest, &first, &updated, &created, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		c.Query = latest.String
		c.Title = chatTitle(latest.String, first.String)
		c.CreatedAt = created.Time
		c.UpdatedAt = updated.Time
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chats: %w", err)
	}
	return chats, nil
}

// SetTitle records a title row for the chat
func (s *SQLStore) SetTitle(ctx context.Context, chatID, title string) error {
	if title == "" {
		return errors.New("title must not be empty")
	}
	_, err := s.Save(ctx, &Turn{ChatID: chatID, Query: TitlePrefix + title})
	return err
}

// Ping checks the chat database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
