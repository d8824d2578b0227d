// Package status projects the stores into the caller-facing job snapshot,
// either once or as a stream that follows the job to its end.
package status

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/notify"
)

type ProgressReader interface {
	Get(ctx context.Context, jobID string) (domain.BatchProgress, error)
}

type ResultReader interface {
	Get(ctx context.Context, jobID string) (domain.BatchResult, bool, error)
}

type Projector struct {
	progress ProgressReader
	results  ResultReader
	sub      notify.Subscriber
	interval time.Duration
}

// New returns a projector. Streams wake on signals from sub and re-poll every
// interval regardless; sub may be nil to rely on polling alone.
func New(progress ProgressReader, results ResultReader, sub notify.Subscriber, interval time.Duration) *Projector {
	if interval <= 0 {
		interval = time.Second
	}
	return &Projector{progress: progress, results: results, sub: sub, interval: interval}
}

func (p *Projector) Poll(ctx context.Context, jobID string) (domain.Snapshot, error) {
	prog, progErr := p.progress.Get(ctx, jobID)
	if progErr != nil && !errors.Is(progErr, domain.ErrJobNotFound) {
		return domain.Snapshot{}, progErr
	}

	res, ok, err := p.results.Get(ctx, jobID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	switch {
	case progErr == nil && ok:
		return project(prog, &res), nil
	case progErr == nil:
		return project(prog, nil), nil
	case ok:
		return fromResult(res), nil
	default:
		return domain.Snapshot{}, domain.ErrJobNotFound
	}
}

// Stream yields the current snapshot, then a new one each time the status or
// the overall progress moves, and ends after the terminal snapshot. A failed
// poll is yielded as the last element. Stopping the loop or cancelling ctx
// releases the change subscription.
func (p *Projector) Stream(ctx context.Context, jobID string) iter.Seq2[domain.Snapshot, error] {
	return func(yield func(domain.Snapshot, error) bool) {
		var changes <-chan struct{}
		if p.sub != nil {
			ch, unsub, err := p.sub.Subscribe(ctx, jobID)
			if err != nil {
				yield(domain.Snapshot{}, err)
				return
			}
			defer unsub()
			changes = ch
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last *domain.Snapshot
		for {
			snap, err := p.Poll(ctx, jobID)
			if err != nil {
				if ctx.Err() == nil {
					yield(domain.Snapshot{}, err)
				}
				return
			}

			if last == nil || last.Status != snap.Status || last.OverallProgress != snap.OverallProgress {
				if !yield(snap, nil) {
					return
				}
				last = &snap
			}
			if snap.Status.Terminal() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-changes:
			case <-ticker.C:
			}
		}
	}
}

func project(prog domain.BatchProgress, res *domain.BatchResult) domain.Snapshot {
	snap := domain.Snapshot{
		JobID:           prog.JobID,
		OverallProgress: prog.Overall(),
		Summary:         prog.Summary(),
		Files:           prog.Files,
		Result:          res,
	}

	switch {
	case res != nil && res.AllFailed():
		snap.Status = domain.JobFailed
	case res != nil:
		snap.Status = domain.JobCompleted
	case len(prog.Files) > 0 && !prog.Started():
		snap.Status = domain.JobQueued
	default:
		// still running, or every item is done and the result is on its way
		snap.Status = domain.JobProcessing
	}

	if res != nil {
		snap.OverallProgress = 100
	}
	return snap
}

// fromResult rebuilds the view of a job whose progress record is gone.
func fromResult(res domain.BatchResult) domain.Snapshot {
	files := make([]domain.FileProgress, 0, len(res.Items))
	for _, o := range res.Items {
		f := domain.FileProgress{
			Key:       o.Key,
			Filename:  o.Filename,
			Status:    domain.FileCompleted,
			Progress:  100,
			UpdatedAt: res.CollectedAt,
		}
		if !o.Success {
			f.Status = domain.FileFailed
			f.Error = o.Reason
		}
		files = append(files, f)
	}

	snap := domain.Snapshot{
		JobID:           res.JobID,
		Status:          domain.JobCompleted,
		OverallProgress: 100,
		Summary: domain.BatchSummary{
			TotalFiles:     len(res.Items),
			CompletedFiles: res.Succeeded,
			FailedFiles:    res.Failed,
		},
		Files:  files,
		Result: &res,
	}
	if res.AllFailed() {
		snap.Status = domain.JobFailed
	}
	return snap
}
