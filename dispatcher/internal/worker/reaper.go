package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/you-humble/meshbatch/core/barrier"
)

type OverdueIndex interface {
	Overdue(ctx context.Context, now time.Time) ([]barrier.Ref, error)
}

type Settler interface {
	Reap(ctx context.Context, jobID, key string, now time.Time) (bool, error)
}

type FileSweeper interface {
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) error
}

// Reaper settles units nobody reported in time, e.g. because the worker
// running them died, and sweeps files older than the retention window.
type Reaper struct {
	index      OverdueIndex
	settler    Settler
	files      FileSweeper
	interval   time.Duration
	fileMaxAge time.Duration
}

func NewReaper(index OverdueIndex, settler Settler, files FileSweeper, interval, fileMaxAge time.Duration) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{
		index:      index,
		settler:    settler,
		files:      files,
		interval:   interval,
		fileMaxAge: fileMaxAge,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep runs one pass and returns how many units it settled.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	refs, err := r.index.Overdue(ctx, now)
	if err != nil {
		slog.Warn("reaper overdue units", slog.String("error", err.Error()))
	}

	settled := 0
	for _, ref := range refs {
		done, err := r.settler.Reap(ctx, ref.JobID, ref.Key, now)
		if err != nil {
			slog.Warn("reap unit",
				slog.String("job_id", ref.JobID),
				slog.String("item_key", ref.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		if done {
			settled++
		}
	}
	if settled > 0 {
		slog.Info("reaper settled units", slog.Int("count", settled))
	}

	if r.files != nil && r.fileMaxAge > 0 {
		if err := r.files.CleanupOlderThan(ctx, r.fileMaxAge); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("cleanup old files", slog.String("error", err.Error()))
		}
	}
	return settled
}
