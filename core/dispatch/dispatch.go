// Package dispatch fans a batch out into one queued unit per item.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/meshbatch/core/domain"
)

type ProgressStore interface {
	Init(ctx context.Context, jobID string, items []domain.Item) error
	Get(ctx context.Context, jobID string) (domain.BatchProgress, error)
	Update(ctx context.Context, jobID, itemKey string, status domain.FileStatus, percent int, errMsg string) error
}

type Barrier interface {
	Open(ctx context.Context, jobID string, total int) error
	Report(ctx context.Context, jobID string, outcome domain.ItemOutcome) error
	Track(ctx context.Context, jobID, key string, deadline time.Time) error
	Untrack(ctx context.Context, jobID, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, u domain.Unit) error
}

type Notifier interface {
	Notify(ctx context.Context, jobID string) error
}

type Dispatcher struct {
	progress  ProgressStore
	barrier   Barrier
	publisher Publisher
	notifier  Notifier
	// queueWait bounds how long a unit may sit in the queue before any
	// worker starts it. Started units are bounded by the runner's liveness.
	queueWait time.Duration
	now       func() time.Time
}

func New(
	progress ProgressStore,
	barrier Barrier,
	publisher Publisher,
	notifier Notifier,
	queueWait time.Duration,
) *Dispatcher {
	return &Dispatcher{
		progress:  progress,
		barrier:   barrier,
		publisher: publisher,
		notifier:  notifier,
		queueWait: queueWait,
		now:       time.Now,
	}
}

// Dispatch starts tracking jobID and queues every item. The returned count
// is the number of units actually queued; items that could not be queued are
// failed right away so the job still completes.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	jobID string,
	items []domain.Item,
	params map[string]string,
) (int, error) {
	if err := validate(jobID, items); err != nil {
		return 0, err
	}

	log := slog.With(slog.String("job_id", jobID))

	if err := d.progress.Init(ctx, jobID, items); err != nil {
		return 0, err
	}
	if err := d.barrier.Open(ctx, jobID, len(items)); err != nil {
		return 0, err
	}

	now := d.now()
	deadline := now.Add(d.queueWait)

	queued := 0
	for _, it := range items {
		if err := d.barrier.Track(ctx, jobID, it.Key, deadline); err != nil {
			log.Warn("track unit", slog.String("item_key", it.Key), slog.String("error", err.Error()))
		}

		err := d.publisher.Publish(ctx, domain.Unit{
			JobID:      jobID,
			Item:       it,
			Params:     params,
			EnqueuedAt: now,
		})
		if err != nil {
			log.Error("queue unit", slog.String("item_key", it.Key), slog.String("error", err.Error()))
			if ferr := d.fail(ctx, jobID, it, "enqueue: "+err.Error()); ferr != nil {
				log.Error("fail unqueued unit", slog.String("item_key", it.Key), slog.String("error", ferr.Error()))
			}
			continue
		}
		queued++
	}

	log.Info("batch dispatched",
		slog.Int("items", len(items)),
		slog.Int("queued", queued),
	)
	return queued, nil
}

// ForceFail marks one item failed from outside the worker that runs it. The
// worker's own later result is rejected by the state machine and the barrier.
func (d *Dispatcher) ForceFail(ctx context.Context, jobID, key, reason string) error {
	rec, err := d.progress.Get(ctx, jobID)
	if err != nil {
		return err
	}

	it, _, ok := find(rec, key)
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrItemNotFound, jobID, key)
	}

	if reason == "" {
		reason = "forced failure"
	}

	return d.fail(ctx, jobID, it, reason)
}

// Reap settles a unit whose tracking deadline passed by now. It reports
// whether the unit left the liveness index. A started unit is failed; a unit
// still waiting in the queue is tracked again until the queue wait since
// submission runs out; a unit that reached a terminal state without
// reporting it gets its outcome reported from the progress record.
func (d *Dispatcher) Reap(ctx context.Context, jobID, key string, now time.Time) (bool, error) {
	rec, err := d.progress.Get(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return true, d.barrier.Untrack(ctx, jobID, key)
	}
	if err != nil {
		return false, err
	}

	it, f, ok := find(rec, key)
	if !ok {
		return true, d.barrier.Untrack(ctx, jobID, key)
	}

	switch f.Status {
	case domain.FileCompleted:
		return true, d.barrier.Report(ctx, jobID, domain.Succeeded(it, nil))
	case domain.FileFailed:
		return true, d.barrier.Report(ctx, jobID, domain.Failed(it, f.Error))
	case domain.FilePending:
		deadline := rec.CreatedAt.Add(d.queueWait)
		if now.Before(deadline) {
			return false, d.barrier.Track(ctx, jobID, key, deadline)
		}
		return true, d.fail(ctx, jobID, it, fmt.Sprintf("unit not started within %s", d.queueWait))
	default:
		return true, d.fail(ctx, jobID, it, "unit deadline exceeded")
	}
}

func (d *Dispatcher) fail(ctx context.Context, jobID string, it domain.Item, reason string) error {
	if err := d.progress.Update(ctx, jobID, it.Key, domain.FileFailed, 0, reason); err != nil {
		return err
	}
	if err := d.barrier.Report(ctx, jobID, domain.Failed(it, reason)); err != nil {
		return err
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, jobID); err != nil {
			slog.Warn("notify", slog.String("job_id", jobID), slog.String("error", err.Error()))
		}
	}
	return nil
}

func validate(jobID string, items []domain.Item) error {
	if jobID == "" {
		return fmt.Errorf("%w: empty job id", domain.ErrInvalidBatch)
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Key == "" {
			return fmt.Errorf("%w: item without key", domain.ErrInvalidBatch)
		}
		if _, dup := seen[it.Key]; dup {
			return fmt.Errorf("%w: duplicate item key %q", domain.ErrInvalidBatch, it.Key)
		}
		seen[it.Key] = struct{}{}
	}
	return nil
}

// find rebuilds the item from its progress entry. Files keep submission
// order, so the position is the item index.
func find(rec domain.BatchProgress, key string) (domain.Item, domain.FileProgress, bool) {
	for i, f := range rec.Files {
		if f.Key == key {
			return domain.Item{Key: key, Index: i, Filename: f.Filename}, f, true
		}
	}
	return domain.Item{}, domain.FileProgress{}, false
}
