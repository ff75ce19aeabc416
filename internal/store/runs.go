package store

import (
	"context"
	"fmt"
	"time"
)

// RunRecord is one entry of the batch-run ledger.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	SourceDir  string    `json:"source_dir"`
	UndoDir    string    `json:"undo_dir,omitempty"`
	EPerson    string    `json:"eperson,omitempty"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RecordRun appends a run to the ledger.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(run_id, source_dir, undo_dir, eperson, total, succeeded, dry_run, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		r.SourceDir,
		r.UndoDir,
		r.EPerson,
		r.Total,
		r.Succeeded,
		r.DryRun,
		r.StartedAt.UTC().Format(timeLayout),
		r.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first, at most limit of them
// (all when limit <= 0).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, source_dir, undo_dir, eperson, total, succeeded, dry_run, started_at, finished_at
		FROM batch_runs
		ORDER BY started_at DESC, run_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.SourceDir, &r.UndoDir, &r.EPerson,
			&r.Total, &r.Succeeded, &r.DryRun, &started, &finished); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
