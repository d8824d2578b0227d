package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/libs/backoff"
)

type ResultWriter interface {
	Put(ctx context.Context, res domain.BatchResult) error
}

type Notifier interface {
	Notify(ctx context.Context, jobID string) error
}

type Aggregator struct {
	results  ResultWriter
	notifier Notifier
	retry    backoff.Policy
	now      func() time.Time
}

func New(results ResultWriter, notifier Notifier, retry backoff.Policy) *Aggregator {
	return &Aggregator{results: results, notifier: notifier, retry: retry, now: time.Now}
}

// Collect is the barrier callback. It turns the outcomes into the job result,
// stores it and tells status watchers about it.
func (a *Aggregator) Collect(ctx context.Context, jobID string, outcomes []domain.ItemOutcome) {
	res := domain.NewBatchResult(jobID, outcomes, a.now())
	log := slog.With(slog.String("job_id", jobID))

	err := backoff.Retry(ctx, a.retry, func(err error) bool {
		return !errors.Is(err, domain.ErrResultExists) && !errors.Is(err, domain.ErrInvalidRecord)
	}, func(ctx context.Context, attempt int) error {
		err := a.results.Put(ctx, res)
		if err != nil && !errors.Is(err, domain.ErrResultExists) {
			log.Warn("put result", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		}
		return err
	})

	switch {
	case errors.Is(err, domain.ErrResultExists):
		log.Info("result already stored")
	case err != nil:
		log.Error("result lost", slog.String("error", err.Error()))
		return
	default:
		log.Info("result stored",
			slog.Int("succeeded", res.Succeeded),
			slog.Int("failed", res.Failed),
		)
	}

	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, jobID); err != nil {
		log.Warn("notify result", slog.String("error", err.Error()))
	}
}
