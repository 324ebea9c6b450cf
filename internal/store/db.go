package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps sql.DB together with the dialect it speaks.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB opens a connection pool for the dialect. Like sql.Open it returns a
// usable handle even when the initial ping fails, so callers may start
// degraded and report the error through health checks.
func NewDB(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	case SQLite:
		db, err = openSQLite(dsn)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &DB{Client: db, Dialect: dialect}, db.PingContext(ctx)
}

func openSQLite(path string) (*sql.DB, error) {
	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		path += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Rebind rewrites '?' placeholders into the dialect's positional form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return fmt.Errorf("database not configured")
	}
	return d.Client.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
