// Package sqlite provides a SQLite session store whose transition table
// doubles as the audit trail of every lot.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store implements ports.SessionStore on SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and creates the tables when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the session row and appends a transition in one transaction.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	runJSON, err := json.Marshal(session.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (lot, expiry, state, origin_input, context_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(lot) DO UPDATE SET
	expiry = excluded.expiry,
	state = excluded.state,
	origin_input = excluded.origin_input,
	context_json = excluded.context_json,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at
`,
		session.Lot,
		session.Expiry,
		string(session.State),
		session.OriginInput,
		string(runJSON),
		toMillis(session.Created),
		toMillis(session.Updated),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	t := session.Transition()
	_, err = tx.ExecContext(ctx, `
INSERT INTO session_transitions (lot, state, origin_input, at) VALUES (?, ?, ?, ?)
`, t.Lot, string(t.State), t.OriginInput, toMillis(t.At))
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectSession = `
SELECT lot, expiry, state, origin_input, context_json, created_at, updated_at
FROM sessions
`

// Load retrieves one session.
func (s *Store) Load(ctx context.Context, lot string) (*domain.Session, error) {
	row := s.sqlDB.QueryRowContext(ctx, selectSession+"WHERE lot = ?", lot)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// List returns every stored session ordered by lot.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.sqlDB.QueryContext(ctx, selectSession+"ORDER BY lot")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// History returns the transitions of a lot in insertion order.
func (s *Store) History(ctx context.Context, lot string) ([]domain.Transition, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT lot, state, origin_input, at
FROM session_transitions
WHERE lot = ?
ORDER BY id
`, lot)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transition, 0)
	for rows.Next() {
		var (
			t     domain.Transition
			state string
			at    int64
		)
		if err := rows.Scan(&t.Lot, &state, &t.OriginInput, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.State = domain.SessionState(state)
		t.At = fromMillis(at)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// Delete removes the session and its transitions.
func (s *Store) Delete(ctx context.Context, lot string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE lot = ?`, lot); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_transitions WHERE lot = ?`, lot); err != nil {
		return fmt.Errorf("delete transitions: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session          domain.Session
		state, runJSON   string
		created, updated int64
	)
	if err := row.Scan(&session.Lot, &session.Expiry, &state, &session.OriginInput, &runJSON, &created, &updated); err != nil {
		return nil, err
	}
	session.State = domain.SessionState(state)
	session.Created = fromMillis(created)
	session.Updated = fromMillis(updated)
	if runJSON != "" && runJSON != "null" {
		session.Context = domain.NewContext()
		if err := json.Unmarshal([]byte(runJSON), session.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return &session, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
