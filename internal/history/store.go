package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vidbatch/vidbatch/pkg/api"
)

// Store is a SQLite-backed record of past batch runs.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordRun persists a finished batch report and returns its run ID.
func (s *Store) RecordRun(ctx context.Context, report *api.BatchReport) (string, error) {
	runID := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, elapsed_ms, total, succeeded, failed, cancelled, estimate_min_usd, estimate_max_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		report.ElapsedMS,
		report.Total,
		report.Succeeded,
		report.Failed,
		report.Cancelled,
		report.Estimate.MinUSD,
		report.Estimate.MaxUSD,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, o := range report.Outcomes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_outcomes (run_id, job_index, status, output_path, remote_url, request_id, duration_ms, attempts, message)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, o.Index, string(o.Status), o.OutputPath, o.RemoteURL, o.RequestID, o.DurationMS, o.Attempts, o.Message,
		)
		if err != nil {
			return "", fmt.Errorf("insert outcome %d: %w", o.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// RunSummary is one row of `vidbatch history`.
type RunSummary struct {
	ID        string
	StartedAt time.Time
	ElapsedMS int64
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, elapsed_ms, total, succeeded, failed, cancelled
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		if err := rows.Scan(&r.ID, &started, &r.ElapsedMS, &r.Total, &r.Succeeded, &r.Failed, &r.Cancelled); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}
