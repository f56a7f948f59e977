// Package executor runs queries against the transaction events store under a
// timeout and a row cap.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/lib/pq"

	"github.com/entrepeneur4lyf/paycopilot/internal/deadline"
	"github.com/entrepeneur4lyf/paycopilot/internal/metrics"
	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Executor runs SQL against the transactions database.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
	schema  *schema.Schema
	metrics *metrics.Recorder
	logger  *log.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds each query. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMaxRows sets the row cap.
func WithMaxRows(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// WithSchema enables column suggestions for unknown-column errors.
func WithSchema(s *schema.Schema) Option {
	return func(e *Executor) { e.schema = s }
}

// WithMetrics sets the recorder for query latency.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Executor) { e.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an executor over an open database handle.
func New(db *sql.DB, opts ...Option) *Executor {
	e := &Executor{
		db:      db,
		timeout: 30 * time.Second,
		maxRows: 1000,
		logger:  log.Default().WithPrefix("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open connects to a Postgres database and verifies it is reachable.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// MaxRows returns the configured row cap.
func (e *Executor) MaxRows() int {
	return e.maxRows
}

// Ping checks the store is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// ApplyRowCap appends a LIMIT clause to queries that have neither a LIMIT
// nor a COUNT.
func ApplyRowCap(query string, maxRows int) string {
	upper := strings.ToUpper(query)
	if strings.Contains(upper, "LIMIT") || strings.Contains(upper, "COUNT") {
		return query
	}
	trimmed := strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
	return fmt.Sprintf("%s LIMIT %d;", trimmed, maxRows)
}

// Execute runs query with args and returns at most MaxRows rows in result
// order. Failures are *deadline.TimeoutError, *ComputedColumnError or
// *ExecutionError.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	capped := ApplyRowCap(query, e.maxRows)
	if capped != query {
		e.logger.Debug("row cap applied", "max_rows", e.maxRows)
	}

	start := time.Now()
	rows, err := deadline.Run(ctx, e.timeout, "database query", func(ctx context.Context) ([]Row, error) {
		return e.query(ctx, capped, args)
	})
	e.metrics.QueryDuration(ctx, time.Since(start), err == nil)

	if err != nil {
		if errors.Is(err, deadline.ErrTimeout) {
			e.logger.Warn("query timed out", "timeout", e.timeout)
			return nil, deadline.WithHint(err, TimeoutHint)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		classified := e.classifyError(err)
		e.logger.Error("query failed", "error", classified)
		return nil, classified
	}

	e.logger.Debug("query executed", "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

// query holds one connection for the duration of the call.
func (e *Executor) query(ctx context.Context, query string, args []any) ([]Row, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	rs, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	columns, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for rs.Next() {
		if len(out) >= e.maxRows {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
