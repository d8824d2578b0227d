package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/kv"
)

type Store struct {
	kv  *kv.Store
	ttl time.Duration
	now func() time.Time
}

func NewStore(s *kv.Store, ttl time.Duration) *Store {
	return &Store{kv: s, ttl: ttl, now: time.Now}
}

// Init creates a fresh record with every item pending, replacing any record
// already stored for jobID.
func (s *Store) Init(ctx context.Context, jobID string, items []domain.Item) error {
	rec := domain.NewBatchProgress(jobID, items, s.now())
	if err := s.kv.Set(ctx, progressKey(jobID), rec, s.ttl); err != nil {
		return fmt.Errorf("init progress %s: %w", jobID, err)
	}
	return nil
}

// Update moves one item through the state machine in a single atomic
// read-modify-write. Counters change only when the item becomes terminal for
// the first time. Updating a job that is not tracked (never initialised or
// expired) is a logged no-op.
func (s *Store) Update(
	ctx context.Context,
	jobID, itemKey string,
	status domain.FileStatus,
	percent int,
	errMsg string,
) error {
	now := s.now()

	err := kv.Update(ctx, s.kv, progressKey(jobID), s.ttl, func(rec *domain.BatchProgress) error {
		f, ok := rec.File(itemKey)
		if !ok {
			return fmt.Errorf("%w: %s/%s", domain.ErrItemNotFound, jobID, itemKey)
		}

		next, err := domain.Transition(f.Status, status)
		if err != nil {
			return err
		}

		if next.Terminal() && !f.Status.Terminal() {
			if next == domain.FileCompleted {
				rec.CompletedFiles++
			} else {
				rec.FailedFiles++
			}
		}

		switch {
		case next.Terminal():
			f.Progress = 100
		case next == domain.FileProcessing:
			f.Progress = domain.ClampPercent(percent)
		}

		if next == domain.FileFailed && f.Status != domain.FileFailed && errMsg != "" {
			f.Error = errMsg
		}

		f.Status = next
		f.UpdatedAt = now
		rec.UpdatedAt = now
		return nil
	})

	if errors.Is(err, kv.ErrNotFound) {
		slog.Warn("progress update for untracked job",
			slog.String("job_id", jobID),
			slog.String("item_key", itemKey),
			slog.String("status", string(status)),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update progress %s/%s: %w", jobID, itemKey, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (domain.BatchProgress, error) {
	rec, err := kv.Get[domain.BatchProgress](ctx, s.kv, progressKey(jobID))
	if errors.Is(err, kv.ErrNotFound) {
		return domain.BatchProgress{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.BatchProgress{}, fmt.Errorf("get progress %s: %w", jobID, err)
	}
	return rec, nil
}

func (s *Store) OverallProgress(ctx context.Context, jobID string) (int, error) {
	rec, err := s.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	return rec.Overall(), nil
}

// Cleanup evicts the record early. Evicting an absent record is fine.
func (s *Store) Cleanup(ctx context.Context, jobID string) error {
	return s.kv.Delete(ctx, progressKey(jobID))
}

func progressKey(jobID string) string {
	return "progress:" + jobID
}
