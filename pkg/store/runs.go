package store

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"newspipe/pkg/model"
)

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	_, err := exec(ctx, s.db, sq.Insert("pipeline_runs").Options("OR REPLACE").
		Columns("run_id", "stage", "started_at", "finished_at", "processed", "skipped", "failed", "timed_out", "dry_run").
		Values(run.ID, run.Stage, formatTime(run.StartedAt), formatTime(run.FinishedAt),
			run.Processed, run.Skipped, run.Failed, run.TimedOut, run.DryRun))
	return err
}

// ListRuns returns the most recent runs first. Empty stage lists all stages.
func (s *SQLiteStore) ListRuns(ctx context.Context, stage string, limit int) ([]model.PipelineRun, error) {
	b := sq.Select("run_id", "stage", "started_at", "finished_at", "processed", "skipped", "failed", "timed_out", "dry_run").
		From("pipeline_runs").
		OrderBy("started_at DESC", "run_id")
	if stage != "" {
		b = b.Where(sq.Eq{"stage": stage})
	}
	rows, err := query(ctx, s.db, withLimit(b, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PipelineRun
	for rows.Next() {
		var r model.PipelineRun
		var started, finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Stage, &started, &finished, &r.Processed, &r.Skipped, &r.Failed, &r.TimedOut, &r.DryRun); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
