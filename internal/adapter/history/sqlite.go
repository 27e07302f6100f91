// Package history persists action state transitions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"canvasmith/internal/domain"
)

// Record is one action's last known state within a session.
type Record struct {
	SessionID string `json:"session_id"`
	domain.ActionState
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	SessionID string
	Status    domain.ActionStatus
	Limit     int
}

// SQLiteStore keeps action history in SQLite, one row per (session, action).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS action_history (
			session_id    TEXT NOT NULL,
			action_id     TEXT NOT NULL,
			kind          TEXT NOT NULL,
			target        TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			executed      INTEGER NOT NULL DEFAULT 0,
			deferred      INTEGER NOT NULL DEFAULT 0,
			error_title   TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			error_output  TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			started_at    TEXT,
			finished_at   TEXT,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (session_id, action_id)
		);
		CREATE INDEX IF NOT EXISTS idx_action_history_updated ON action_history(updated_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert stores st as the latest state of its action in sessionID.
func (s *SQLiteStore) Upsert(ctx context.Context, sessionID string, st domain.ActionState) error {
	if sessionID == "" || st.ID == "" {
		return domain.NewDomainError("SQLiteStore.Upsert", domain.ErrInvalidInput, "session and action id are required")
	}
	var title, msg, output string
	if st.Error != nil {
		title, msg, output = st.Error.Title, st.Error.Message, st.Error.Output
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_history (
			session_id, action_id, kind, target, status, executed, deferred,
			error_title, error_message, error_output,
			created_at, started_at, finished_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, action_id) DO UPDATE SET
			status = excluded.status,
			executed = excluded.executed,
			deferred = excluded.deferred,
			error_title = excluded.error_title,
			error_message = excluded.error_message,
			error_output = excluded.error_output,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at`,
		sessionID, st.ID, string(st.Kind), st.Target, string(st.Status),
		boolInt(st.Executed), boolInt(st.Deferred),
		title, msg, output,
		formatTime(st.CreatedAt), formatTimePtr(st.StartedAt), formatTimePtr(st.FinishedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s/%s: %v", domain.ErrHistoryStore, sessionID, st.ID, err)
	}
	return nil
}

// List returns matching records, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	q := `SELECT session_id, action_id, kind, target, status, executed, deferred,
		error_title, error_message, error_output,
		created_at, started_at, finished_at, updated_at
		FROM action_history`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC, action_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", domain.ErrHistoryStore, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r                  Record
		kind, status       string
		executed, deferred int
		title, msg, output string
		created, updated   string
		started, finished  sql.NullString
	)
	if err := rows.Scan(&r.SessionID, &r.ID, &kind, &r.Target, &status, &executed, &deferred,
		&title, &msg, &output, &created, &started, &finished, &updated); err != nil {
		return Record{}, fmt.Errorf("scan history row: %w", err)
	}
	r.Kind = domain.ActionKind(kind)
	r.Status = domain.ActionStatus(status)
	r.Executed = executed != 0
	r.Deferred = deferred != 0
	if title != "" || msg != "" || output != "" {
		r.Error = &domain.ActionError{Title: title, Message: msg, Output: output}
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	if started.Valid {
		t := parseTime(started.String)
		r.StartedAt = &t
	}
	if finished.Valid {
		t := parseTime(finished.String)
		r.FinishedAt = &t
	}
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
