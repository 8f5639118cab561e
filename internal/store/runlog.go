package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pawhub/ingest-service/internal/model"
)

// DefaultRunLimit bounds ListRuns when the caller passes no limit.
const DefaultRunLimit = 50

// LatestRun returns the newest run log entry for taskType, or nil when the
// task has never run.
func (s *Store) LatestRun(ctx context.Context, taskType string) (*model.RunLogEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, task_type, started_at, status, detail
		 FROM run_log
		 WHERE task_type = $1
		 ORDER BY started_at DESC
		 LIMIT 1`,
		taskType,
	)
	e, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("latest run", err)
	}
	return &e, nil
}

// AppendRun adds e to the run log. Entries are never updated.
func (s *Store) AppendRun(ctx context.Context, e model.RunLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	detail := string(e.Detail)
	if detail == "" {
		detail = "{}"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_log (id, task_type, started_at, status, detail)
		 VALUES ($1, $2, $3, $4, $5::jsonb)`,
		e.ID, e.TaskType, e.StartedAt, string(e.Status), detail,
	)
	return wrap("append run", err)
}

// ListRuns returns recent entries, newest first. An empty taskType lists
// every task.
func (s *Store) ListRuns(ctx context.Context, taskType string, limit int) ([]model.RunLogEntry, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	var (
		rows pgx.Rows
		err  error
	)
	const base = `SELECT id, task_type, started_at, status, detail FROM run_log`
	if taskType != "" {
		rows, err = s.pool.Query(ctx, base+` WHERE task_type = $1 ORDER BY started_at DESC LIMIT $2`, taskType, limit)
	} else {
		rows, err = s.pool.Query(ctx, base+` ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, wrap("list runs", err)
	}
	defer rows.Close()

	entries := make([]model.RunLogEntry, 0)
	for rows.Next() {
		e, err := scanRun(rows)
		if err != nil {
			return nil, wrap("list runs scan", err)
		}
		entries = append(entries, e)
	}
	return entries, wrap("list runs", rows.Err())
}

func scanRun(row rowScanner) (model.RunLogEntry, error) {
	var (
		e      model.RunLogEntry
		status string
		detail []byte
	)
	if err := row.Scan(&e.ID, &e.TaskType, &e.StartedAt, &status, &detail); err != nil {
		return model.RunLogEntry{}, err
	}
	e.Status = model.RunStatus(status)
	e.Detail = detail
	return e, nil
}
