// Package history keeps a SQLite record of processing runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aero-vision/internal/pipeline"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Fixed-width UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one persisted run.
type Record struct {
	ID         string          `json:"id"`
	Detector   string          `json:"detector"`
	Params     pipeline.Params `json:"params"`
	State      string          `json:"state"`
	Progress   int             `json:"progress"`
	LastStage  string          `json:"last_stage"`
	Layers     int             `json:"layers"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Store implements pipeline.Recorder on a SQLite database.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

var _ pipeline.Recorder = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log.WithField("component", "history")}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            detector TEXT NOT NULL,
            params_json TEXT,
            state TEXT NOT NULL,
            progress INTEGER NOT NULL DEFAULT 0,
            last_stage TEXT,
            layers INTEGER NOT NULL DEFAULT 0,
            error_message TEXT,
            started_at TEXT NOT NULL,
            finished_at TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunStarted implements pipeline.Recorder.
func (s *Store) RunStarted(ctx context.Context, run pipeline.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, detector, params_json, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Detector, string(params), pipeline.StateRunning.String(), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	s.log.WithField("job_id", run.ID).Debug("Run recorded")
	return nil
}

// RunFinished implements pipeline.Recorder.
func (s *Store) RunFinished(ctx context.Context, out pipeline.Outcome) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, progress = ?, last_stage = ?, layers = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		out.State.String(), out.Progress, out.LastStage, out.Layers, out.Err, formatTime(out.FinishedAt), out.ID)
	if err != nil {
		return fmt.Errorf("failed to record run outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, out.ID)
	}
	s.log.WithFields(logrus.Fields{"job_id": out.ID, "state": out.State}).Debug("Run outcome recorded")
	return nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns the most recent runs first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := selectRuns + ` ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

const selectRuns = `SELECT id, detector, params_json, state, progress, last_stage, layers, error_message, started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec                         Record
		params, stage, errMsg, done sql.NullString
		started                     string
	)
	if err := sc.Scan(&rec.ID, &rec.Detector, &params, &rec.State, &rec.Progress, &stage, &rec.Layers, &errMsg, &started, &done); err != nil {
		return Record{}, err
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &rec.Params); err != nil {
			return Record{}, fmt.Errorf("run %s has bad params: %w", rec.ID, err)
		}
	}
	rec.LastStage = stage.String
	rec.Error = errMsg.String

	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Record{}, fmt.Errorf("run %s has bad start time: %w", rec.ID, err)
	}
	rec.StartedAt = t
	if done.Valid && done.String != "" {
		t, err := time.Parse(timeLayout, done.String)
		if err != nil {
			return Record{}, fmt.Errorf("run %s has bad finish time: %w", rec.ID, err)
		}
		rec.FinishedAt = &t
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
