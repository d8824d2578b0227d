// Package barrier implements the fan-in side of a batch: every item reports
// its terminal outcome once, and the report that completes the set runs the
// completion callback. The state lives in Redis so reports may come from any
// number of dispatcher processes.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/kv"
)

// Callback receives every outcome of a job once all of them are in.
type Callback func(ctx context.Context, jobID string, outcomes []domain.ItemOutcome)

type record struct {
	JobID    string                        `json:"job_id"`
	Total    int                           `json:"total"`
	Outcomes map[string]domain.ItemOutcome `json:"outcomes"`
	Fired    bool                          `json:"fired"`
	OpenedAt time.Time                     `json:"opened_at"`
}

func (r record) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("%w: barrier without job id", domain.ErrInvalidRecord)
	}
	if r.Total < 0 || len(r.Outcomes) > r.Total {
		return fmt.Errorf("%w: barrier %d outcomes over %d", domain.ErrInvalidRecord, len(r.Outcomes), r.Total)
	}
	return nil
}

// Ref names one in-flight unit in the liveness index.
type Ref struct {
	JobID string
	Key   string
}

type Barrier struct {
	kv         *kv.Store
	ttl        time.Duration
	onComplete Callback
	now        func() time.Time
}

func New(s *kv.Store, ttl time.Duration, onComplete Callback) *Barrier {
	return &Barrier{kv: s, ttl: ttl, onComplete: onComplete, now: time.Now}
}

// Open starts collecting total outcomes for jobID. A batch without items is
// complete right away and the callback runs before Open returns.
func (b *Barrier) Open(ctx context.Context, jobID string, total int) error {
	if total < 0 {
		return fmt.Errorf("%w: negative item count", domain.ErrInvalidBatch)
	}

	rec := record{
		JobID:    jobID,
		Total:    total,
		Outcomes: map[string]domain.ItemOutcome{},
		Fired:    total == 0,
		OpenedAt: b.now(),
	}
	if err := b.kv.Set(ctx, barrierKey(jobID), rec, b.ttl); err != nil {
		return fmt.Errorf("open barrier %s: %w", jobID, err)
	}

	if total == 0 {
		b.fire(ctx, jobID, nil)
	}
	return nil
}

// Report records the terminal outcome of one item. Only the first report per
// item counts. Reporting to a barrier that does not exist is dropped.
func (b *Barrier) Report(ctx context.Context, jobID string, outcome domain.ItemOutcome) error {
	var complete []domain.ItemOutcome

	err := kv.Update(ctx, b.kv, barrierKey(jobID), b.ttl, func(rec *record) error {
		complete = nil

		if rec.Fired {
			return kv.ErrSkip
		}
		if _, dup := rec.Outcomes[outcome.Key]; dup {
			return kv.ErrSkip
		}

		if rec.Outcomes == nil {
			rec.Outcomes = map[string]domain.ItemOutcome{}
		}
		rec.Outcomes[outcome.Key] = outcome

		if len(rec.Outcomes) == rec.Total {
			rec.Fired = true
			complete = make([]domain.ItemOutcome, 0, len(rec.Outcomes))
			for _, o := range rec.Outcomes {
				complete = append(complete, o)
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, kv.ErrNotFound):
		slog.Warn("report to unknown barrier",
			slog.String("job_id", jobID),
			slog.String("item_key", outcome.Key),
		)
	case err != nil:
		return fmt.Errorf("report %s/%s: %w", jobID, outcome.Key, err)
	}

	if err := b.Untrack(ctx, jobID, outcome.Key); err != nil {
		slog.Warn("untrack reported unit",
			slog.String("job_id", jobID),
			slog.String("item_key", outcome.Key),
			slog.String("error", err.Error()),
		)
	}

	if complete != nil {
		b.fire(ctx, jobID, complete)
	}
	return nil
}

// Reported tells whether an outcome for the item is already recorded, or the
// barrier has already fired.
func (b *Barrier) Reported(ctx context.Context, jobID, key string) (bool, error) {
	rec, err := kv.Get[record](ctx, b.kv, barrierKey(jobID))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("barrier %s: %w", jobID, err)
	}
	if rec.Fired {
		return true, nil
	}
	_, ok := rec.Outcomes[key]
	return ok, nil
}

func (b *Barrier) fire(ctx context.Context, jobID string, outcomes []domain.ItemOutcome) {
	slog.Info("barrier complete",
		slog.String("job_id", jobID),
		slog.Int("outcomes", len(outcomes)),
	)
	if b.onComplete == nil {
		return
	}
	// the record is already marked fired, nobody else will run the callback
	b.onComplete(context.WithoutCancel(ctx), jobID, outcomes)
}

// Track puts the unit into the liveness index with the moment it must have
// reported by. Tracking again moves the deadline.
func (b *Barrier) Track(ctx context.Context, jobID, key string, deadline time.Time) error {
	err := b.kv.Client().ZAdd(ctx, inflightKey(), redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: member(jobID, key),
	}).Err()
	if err != nil {
		return fmt.Errorf("track %s/%s: %w", jobID, key, err)
	}
	return nil
}

func (b *Barrier) Untrack(ctx context.Context, jobID, key string) error {
	if err := b.kv.Client().ZRem(ctx, inflightKey(), member(jobID, key)).Err(); err != nil {
		return fmt.Errorf("untrack %s/%s: %w", jobID, key, err)
	}
	return nil
}

// Overdue lists tracked units whose deadline is not after now.
func (b *Barrier) Overdue(ctx context.Context, now time.Time) ([]Ref, error) {
	members, err := b.kv.Client().ZRangeByScore(ctx, inflightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("overdue units: %w", err)
	}

	refs := make([]Ref, 0, len(members))
	for _, m := range members {
		i := strings.LastIndexByte(m, '|')
		if i <= 0 {
			continue
		}
		refs = append(refs, Ref{JobID: m[:i], Key: m[i+1:]})
	}
	return refs, nil
}

func barrierKey(jobID string) string {
	return "barrier:" + jobID
}

func inflightKey() string {
	return "barrier:inflight"
}

func member(jobID, key string) string {
	return jobID + "|" + key
}
