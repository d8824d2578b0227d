package result

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/kv"
)

type Store struct {
	kv  *kv.Store
	ttl time.Duration
}

func NewStore(s *kv.Store, ttl time.Duration) *Store {
	return &Store{kv: s, ttl: ttl}
}

// Put writes the result of a job once. A second write for the same job
// returns domain.ErrResultExists and keeps the first one.
func (s *Store) Put(ctx context.Context, res domain.BatchResult) error {
	ok, err := s.kv.SetNX(ctx, resultKey(res.JobID), res, s.ttl)
	if err != nil {
		return fmt.Errorf("put result %s: %w", res.JobID, err)
	}
	if !ok {
		return domain.ErrResultExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (domain.BatchResult, bool, error) {
	res, err := kv.Get[domain.BatchResult](ctx, s.kv, resultKey(jobID))
	if errors.Is(err, kv.ErrNotFound) {
		return domain.BatchResult{}, false, nil
	}
	if err != nil {
		return domain.BatchResult{}, false, fmt.Errorf("get result %s: %w", jobID, err)
	}
	return res, true, nil
}

func (s *Store) Delete(ctx context.Context, jobID string) error {
	return s.kv.Delete(ctx, resultKey(jobID))
}

func resultKey(jobID string) string {
	return "result:" + jobID
}
