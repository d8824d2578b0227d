package ownership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/you-humble/meshbatch/core/kv"
)

type record struct {
	Owner   string    `json:"owner"`
	BoundAt time.Time `json:"bound_at"`
}

func (r record) Validate() error {
	if r.Owner == "" {
		return errors.New("ownership: empty owner")
	}
	return nil
}

type Store struct {
	kv  *kv.Store
	ttl time.Duration
	now func() time.Time
}

func NewStore(s *kv.Store, ttl time.Duration) *Store {
	return &Store{kv: s, ttl: ttl, now: time.Now}
}

// Bind records owner as the owner of jobID, replacing any earlier binding and
// restarting its TTL.
func (s *Store) Bind(ctx context.Context, jobID, owner string) error {
	rec := record{Owner: owner, BoundAt: s.now()}
	if err := s.kv.Set(ctx, ownerKey(jobID), rec, s.ttl); err != nil {
		return fmt.Errorf("bind %s: %w", jobID, err)
	}
	return nil
}

// OwnerOf returns the bound owner and whether a binding exists.
func (s *Store) OwnerOf(ctx context.Context, jobID string) (string, bool, error) {
	rec, err := kv.Get[record](ctx, s.kv, ownerKey(jobID))
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("owner of %s: %w", jobID, err)
	}
	return rec.Owner, true, nil
}

// Authorize grants access to the bound owner. A job with no binding (never
// bound, or the binding expired) is open to any requester.
func (s *Store) Authorize(ctx context.Context, jobID, requester string) (bool, error) {
	owner, ok, err := s.OwnerOf(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return owner == requester, nil
}

func ownerKey(jobID string) string {
	return "owner:" + jobID
}
