package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/genrpc"
	"github.com/you-humble/meshbatch/core/libs/backoff"
)

// ErrAlreadyResolved is returned for a unit whose item already has a
// terminal outcome, e.g. a redelivered message or a forced failure.
var ErrAlreadyResolved = errors.New("unit already resolved")

type ProgressStore interface {
	Update(ctx context.Context, jobID, itemKey string, status domain.FileStatus, percent int, errMsg string) error
}

type Barrier interface {
	Reported(ctx context.Context, jobID, key string) (bool, error)
	Report(ctx context.Context, jobID string, outcome domain.ItemOutcome) error
	Track(ctx context.Context, jobID, key string, deadline time.Time) error
}

type Generator interface {
	Generate(ctx context.Context, req genrpc.Request, onProgress func(percent int)) ([]string, error)
}

type Notifier interface {
	Notify(ctx context.Context, jobID string) error
}

type Limits struct {
	// Soft only logs a warning.
	Soft time.Duration `yaml:"soft"`
	// Hard bounds the whole unit, retries included, and fails it.
	Hard time.Duration `yaml:"hard"`
	// Liveness is how long a started unit may go unreported before the
	// reaper settles it.
	Liveness time.Duration `yaml:"liveness"`
}

type Runner struct {
	progress  ProgressStore
	barrier   Barrier
	generator Generator
	notifier  Notifier
	limits    Limits
	retry     backoff.Policy
	now       func() time.Time
}

func NewRunner(
	progress ProgressStore,
	barrier Barrier,
	generator Generator,
	notifier Notifier,
	limits Limits,
	retry backoff.Policy,
) *Runner {
	return &Runner{
		progress:  progress,
		barrier:   barrier,
		generator: generator,
		notifier:  notifier,
		limits:    limits,
		retry:     retry,
		now:       time.Now,
	}
}

// Run drives one unit to a terminal outcome and reports it. Faults of the
// remote call end up in the outcome; Run itself only fails when ctx is
// cancelled before the unit finished, so the message can be redelivered.
func (r *Runner) Run(ctx context.Context, u domain.Unit) error {
	log := slog.With(
		slog.String("job_id", u.JobID),
		slog.String("item_key", u.Item.Key),
	)

	reported, err := r.barrier.Reported(ctx, u.JobID, u.Item.Key)
	if err != nil {
		log.Warn("check reported", slog.String("error", err.Error()))
	}
	if reported {
		return ErrAlreadyResolved
	}

	if err := r.barrier.Track(ctx, u.JobID, u.Item.Key, r.now().Add(r.limits.Liveness)); err != nil {
		log.Warn("refresh liveness", slog.String("error", err.Error()))
	}

	err = r.progress.Update(ctx, u.JobID, u.Item.Key, domain.FileProcessing, 0, "")
	if errors.Is(err, domain.ErrIllegalTransition) {
		return ErrAlreadyResolved
	}
	if err != nil {
		log.Warn("mark processing", slog.String("error", err.Error()))
	}
	r.notify(ctx, u.JobID)

	log.Info("unit start")
	start := r.now()

	artifacts, err := r.generate(ctx, u, log)
	if err != nil && ctx.Err() != nil {
		log.Warn("unit interrupted", slog.String("error", err.Error()))
		return fmt.Errorf("unit %s: %w", u.Ref(), ctx.Err())
	}

	// the unit is settled from here on, shutdown must not cut it short
	ctx = context.WithoutCancel(ctx)

	var outcome domain.ItemOutcome
	if err != nil {
		outcome = domain.Failed(u.Item, err.Error())
		r.update(ctx, u, domain.FileFailed, outcome.Reason, log)
		log.Error("unit failed",
			slog.Duration("took", r.now().Sub(start)),
			slog.String("error", err.Error()),
		)
	} else {
		outcome = domain.Succeeded(u.Item, artifacts)
		r.update(ctx, u, domain.FileCompleted, "", log)
		log.Info("unit done",
			slog.Duration("took", r.now().Sub(start)),
			slog.Int("artifacts", len(artifacts)),
		)
	}
	r.notify(ctx, u.JobID)

	err = backoff.Retry(ctx, r.retry, nil, func(ctx context.Context, _ int) error {
		return r.barrier.Report(ctx, u.JobID, outcome)
	})
	if err != nil {
		// the reaper reports it from the progress record later
		log.Error("report outcome", slog.String("error", err.Error()))
	}
	return nil
}

func (r *Runner) generate(ctx context.Context, u domain.Unit, log *slog.Logger) ([]string, error) {
	hardCtx, cancel := context.WithTimeout(ctx, r.limits.Hard)
	defer cancel()

	if r.limits.Soft > 0 && r.limits.Soft < r.limits.Hard {
		soft := time.AfterFunc(r.limits.Soft, func() {
			log.Warn("unit over soft time limit", slog.Duration("soft_limit", r.limits.Soft))
		})
		defer soft.Stop()
	}

	req := genrpc.Request{
		JobID:    u.JobID,
		ItemKey:  u.Item.Key,
		Filename: u.Item.Filename,
		Input:    u.Item.Input,
		Params:   u.Params,
	}

	last := 0
	onProgress := func(percent int) {
		percent = domain.ClampPercent(percent)
		if percent <= last {
			return
		}
		last = percent
		if err := r.progress.Update(ctx, u.JobID, u.Item.Key, domain.FileProcessing, percent, ""); err != nil {
			log.Warn("progress update", slog.Int("percent", percent), slog.String("error", err.Error()))
			return
		}
		r.notify(ctx, u.JobID)
	}

	var artifacts []string
	err := backoff.Retry(hardCtx, r.retry, domain.IsTransient, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			log.Warn("retrying generation", slog.Int("attempt", attempt+1))
		}
		a, err := r.generator.Generate(ctx, req, onProgress)
		artifacts = a
		return err
	})

	if err != nil && ctx.Err() == nil && errors.Is(hardCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("hard time limit %s exceeded: %w", r.limits.Hard, err)
	}
	return artifacts, err
}

func (r *Runner) update(ctx context.Context, u domain.Unit, st domain.FileStatus, reason string, log *slog.Logger) {
	if err := r.progress.Update(ctx, u.JobID, u.Item.Key, st, 100, reason); err != nil {
		log.Warn("terminal update", slog.String("status", string(st)), slog.String("error", err.Error()))
	}
}

func (r *Runner) notify(ctx context.Context, jobID string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, jobID); err != nil {
		slog.Warn("notify", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}
