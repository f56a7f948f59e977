package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/go-libsql"
)

// Dialect selects SQL differences between the supported chat databases.
type Dialect string

const (
	Postgres Dialect = "postgres"
	LibSQL   Dialect = "libsql"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open connects to the chat database for the given driver. An empty libsql
// URL resolves to the default database file in the user's data directory.
func Open(ctx context.Context, dialect Dialect, url string) (*sql.DB, error) {
	switch dialect {
	case Postgres:
	case LibSQL:
		if url == "" {
			path, err := NewPathManager().GetChatDatabasePath()
			if err != nil {
				return nil, fmt.Errorf("failed to get default chat database path: %w", err)
			}
			url = "file:" + path
		} else if strings.HasPrefix(url, "file:") {
			if err := os.MkdirAll(filepath.Dir(strings.TrimPrefix(url, "file:")), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported chat database driver %q", dialect)
	}

	db, err := sql.Open(string(dialect), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping chat database: %w", err)
	}
	return db, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) turnsDDL(table string) []string {
	if d == Postgres {
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	chat_id VARCHAR(255) NOT NULL,
	timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
	query TEXT,
	response TEXT,
	summary TEXT
)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_chat_id ON %s (chat_id)`, table, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)`, table, table),
		}
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	query TEXT,
	response TEXT,
	summary TEXT
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_chat_id ON %s (chat_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)`, table, table),
	}
}

func (d Dialect) alertsDDL() []string {
	if d == Postgres {
		return []string{`CREATE TABLE IF NOT EXISTS alerts (
	id SERIAL PRIMARY KEY,
	transaction_id VARCHAR(255) NOT NULL,
	summary TEXT,
	is_seen BOOLEAN NOT NULL DEFAULT FALSE,
	timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
)`}
	}
	return []string{`CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id TEXT NOT NULL,
	summary TEXT,
	is_seen BOOLEAN NOT NULL DEFAULT FALSE,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
)`}
}
