// Package statestore persists build state between invocations: the last
// known fingerprints of every task and a short history of runs.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the database file inside the state directory.
const FileName = "state.db"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TaskState is the snapshot recorded after a task last executed successfully.
type TaskState struct {
	TaskID     string
	ConfigHash string
	InputHash  string
	OutputHash string
	UpdatedAt  time.Time
}

// Run is one invocation of the build.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Requested  []string
	Status     string
	Error      string
}

// Store manages the build state database.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Open creates or opens the state database inside dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_state (
		task_id     TEXT PRIMARY KEY,
		config_hash TEXT NOT NULL,
		input_hash  TEXT NOT NULL,
		output_hash TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER,
		requested   TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// TaskState returns the recorded state for a task, if any.
func (s *Store) TaskState(ctx context.Context, taskID string) (*TaskState, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT config_hash, input_hash, output_hash, updated_at FROM task_state WHERE task_id = ?`, taskID)

	st := &TaskState{TaskID: taskID}
	var updated int64
	err := row.Scan(&st.ConfigHash, &st.InputHash, &st.OutputHash, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading state of %s: %w", taskID, err)
	}
	st.UpdatedAt = time.Unix(0, updated)
	return st, true, nil
}

// PutTaskState inserts or replaces the state for a task.
func (s *Store) PutTaskState(ctx context.Context, st TaskState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_state (task_id, config_hash, input_hash, output_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			config_hash = excluded.config_hash,
			input_hash  = excluded.input_hash,
			output_hash = excluded.output_hash,
			updated_at  = excluded.updated_at`,
		st.TaskID, st.ConfigHash, st.InputHash, st.OutputHash, st.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("writing state of %s: %w", st.TaskID, err)
	}
	return nil
}

// DeleteTaskState forgets a task, forcing it to execute next time.
func (s *Store) DeleteTaskState(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_state WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("deleting state of %s: %w", taskID, err)
	}
	return nil
}

// BeginRun records the start of a build and returns its ID.
func (s *Store) BeginRun(ctx context.Context, requested []string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, requested, status) VALUES (?, ?, ?, ?)`,
		id, s.now().UnixNano(), strings.Join(requested, ","), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// FinishRun marks a run as finished. A nil runErr means success.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		s.now().UnixNano(), status, msg, id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, requested, status, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			started   int64
			finished  sql.NullInt64
			requested string
			errText   sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &requested, &r.Status, &errText); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		if requested != "" {
			r.Requested = strings.Split(requested, ",")
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
