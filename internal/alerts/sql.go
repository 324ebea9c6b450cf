package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"invigilens/internal/store"
)

var schemas = map[store.Dialect][]string{
	store.Postgres: {
		`CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			student_id     TEXT NOT NULL DEFAULT 'Unknown',
			violation_type TEXT NOT NULL CHECK (violation_type IN ('Giving object','Giving signal','Looking Friend','Moving','Normal','Using Phone')),
			confidence     DOUBLE PRECISION NOT NULL,
			occurred_at    TIMESTAMPTZ NOT NULL,
			evidence_path  TEXT,
			status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','verified','rejected'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_occurred ON alerts (occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_occurred ON alerts (status, occurred_at DESC)`,
	},
	store.SQLite: {
		`CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			student_id     TEXT NOT NULL DEFAULT 'Unknown',
			violation_type TEXT NOT NULL CHECK (violation_type IN ('Giving object','Giving signal','Looking Friend','Moving','Normal','Using Phone')),
			confidence     REAL NOT NULL,
			occurred_at    DATETIME NOT NULL,
			evidence_path  TEXT,
			status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','verified','rejected'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_occurred ON alerts (occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_occurred ON alerts (status, occurred_at DESC)`,
	},
}

const alertColumns = `id, student_id, violation_type, confidence, occurred_at, evidence_path, status`

// SQLStore persists alerts in Postgres or SQLite.
type SQLStore struct {
	db *store.DB
}

// NewSQLStore creates a store over db. Call Migrate before first use.
func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the alerts table and its indexes if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts, ok := schemas[s.db.Dialect]
	if !ok {
		return fmt.Errorf("no alert schema for dialect %q", s.db.Dialect)
	}
	for _, stmt := range stmts {
		if _, err := s.db.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate alerts: %w", err)
		}
	}
	return nil
}

// Insert writes a new alert. Timestamps are stored at microsecond precision,
// rounded up so the stored value is never earlier than the one given, and the
// returned alert reflects what was stored.
func (s *SQLStore) Insert(ctx context.Context, a Alert) (Alert, error) {
	a.Timestamp = ceilMicro(a.Timestamp.UTC())
	_, err := s.db.Client.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.StudentID, string(a.ViolationType), a.Confidence, a.Timestamp, nullString(a.EvidencePath), string(a.Status))
	if err != nil {
		return Alert{}, err
	}
	return a, nil
}

// Find returns alerts matching f, newest first.
func (s *SQLStore) Find(ctx context.Context, f Filter) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY occurred_at DESC`

	rows, err := s.db.Client.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// FindByID returns a single alert by id.
func (s *SQLStore) FindByID(ctx context.Context, id string) (Alert, error) {
	row := s.db.Client.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+alertColumns+` FROM alerts WHERE id = ?
	`), id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	return a, err
}

// SetStatus overwrites the status of one alert and returns the updated row.
func (s *SQLStore) SetStatus(ctx context.Context, id string, status Status) (Alert, error) {
	row := s.db.Client.QueryRowContext(ctx, s.db.Rebind(`
		UPDATE alerts SET status = ? WHERE id = ?
		RETURNING `+alertColumns), string(status), id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	return a, err
}

// DeleteAll removes every alert and reports how many were removed.
func (s *SQLStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.Client.ExecContext(ctx, `DELETE FROM alerts`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (Alert, error) {
	var (
		a        Alert
		vt, st   string
		evidence sql.NullString
	)
	if err := sc.Scan(&a.ID, &a.StudentID, &vt, &a.Confidence, &a.Timestamp, &evidence, &st); err != nil {
		return Alert{}, err
	}
	a.ViolationType = ViolationType(vt)
	a.Status = Status(st)
	a.EvidencePath = evidence.String
	a.Timestamp = a.Timestamp.UTC()
	return a, nil
}

func ceilMicro(t time.Time) time.Time {
	c := t.Truncate(time.Microsecond)
	if c.Before(t) {
		c = c.Add(time.Microsecond)
	}
	return c
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
