package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newspipe/pkg/db"
)

// Options controls which retention windows apply. Zero disables a task.
type Options struct {
	CacheTTL     time.Duration
	RunRetention time.Duration
}

// Report counts what a maintenance pass removed.
type Report struct {
	CacheEntries int64
	Runs         int64
}

// Run executes all maintenance tasks: cache pruning, run history pruning and
// query planner statistics. Failures of individual tasks are logged and the
// remaining tasks still run; the first error is returned.
func Run(ctx context.Context, d *db.DB, opts Options) (Report, error) {
	slog.Info("Starting database maintenance...")
	var rep Report
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if opts.CacheTTL > 0 {
		n, err := d.PruneCache(opts.CacheTTL)
		if err != nil {
			slog.Error("Cache pruning failed", "error", err)
			keep(fmt.Errorf("prune cache: %w", err))
		} else {
			rep.CacheEntries = n
			slog.Info("Cache pruning completed", "removed", n, "ttl", opts.CacheTTL)
		}
	}

	if opts.RunRetention > 0 {
		n, err := d.PruneRuns(opts.RunRetention)
		if err != nil {
			slog.Error("Run history pruning failed", "error", err)
			keep(fmt.Errorf("prune runs: %w", err))
		} else {
			rep.Runs = n
			slog.Info("Run history pruning completed", "removed", n)
		}
	}

	if _, err := d.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		slog.Warn("PRAGMA optimize failed", "error", err)
	}

	return rep, firstErr
}
