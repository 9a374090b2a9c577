// Package storage keeps the history of analysis runs in sqlite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// timestamps are stored as fixed width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrRunNotFound = errors.New("run not found")

type RunRecord struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	AnalysisType string       `json:"analysis_type"`
	Status       string       `json:"status"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
	Tasks        []TaskRecord `json:"tasks,omitempty"`
}

// Duration is zero while the run is still going.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type TaskRecord struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Agent    string `json:"agent"`
	Raw      string `json:"raw"`
	Plan     string `json:"plan,omitempty"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: time.Now}
	if err := s.InitTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitTables creates the runs and task_outputs tables.
func (s *Store) InitTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			analysis_type TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);`,
		`CREATE TABLE IF NOT EXISTS task_outputs (
			run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			agent TEXT NOT NULL,
			raw TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, position)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init tables: %w", err)
		}
	}
	return nil
}

// BeginRun records a run as started.
func (s *Store) BeginRun(ctx context.Context, id, symbol, analysisType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, symbol, analysis_type, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, symbol, analysisType, StatusRunning, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the task outputs of a run and marks it done, or failed when runErr is set.
func (s *Store) FinishRun(ctx context.Context, id string, tasks []TaskRecord, runErr error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if e := tx.Rollback(); e != nil {
				err = errors.Join(err, e)
			}
		}
	}()

	status, errText := StatusDone, ""
	if runErr != nil {
		status, errText = StatusError, runErr.Error()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errText, s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	for _, t := range tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO task_outputs (run_id, position, name, agent, raw, plan) VALUES (?, ?, ?, ?, ?, ?)`,
			id, t.Position, t.Name, t.Agent, t.Raw, t.Plan,
		)
		if err != nil {
			return fmt.Errorf("insert task output %s/%d: %w", id, t.Position, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", id, err)
	}
	return nil
}

// ListRuns returns the latest runs first, without their task outputs.
// A limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) (_ []RunRecord, err error) {
	query := `SELECT id, symbol, analysis_type, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", e))
		}
	}()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run with its task outputs in order.
func (s *Store) GetRun(ctx context.Context, id string) (_ *RunRecord, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, analysis_type, status, error, started_at, finished_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, name, agent, raw, plan FROM task_outputs WHERE run_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query task outputs: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", e))
		}
	}()

	for rows.Next() {
		var t TaskRecord
		if err = rows.Scan(&t.Position, &t.Name, &t.Agent, &t.Raw, &t.Plan); err != nil {
			return nil, fmt.Errorf("scan task output: %w", err)
		}
		run.Tasks = append(run.Tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("query task outputs: %w", err)
	}
	return &run, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		run               RunRecord
		started, finished string
	)
	if err := sc.Scan(&run.ID, &run.Symbol, &run.AnalysisType, &run.Status, &run.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return run, fmt.Errorf("parse started_at of %s: %w", run.ID, err)
	}
	if finished != "" {
		if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return run, fmt.Errorf("parse finished_at of %s: %w", run.ID, err)
		}
	}
	return run, nil
}
