package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/kv/kvtest"
	"github.com/you-humble/meshbatch/core/libs/backoff"
	"github.com/you-humble/meshbatch/core/result"
)

type flakyWriter struct {
	mu      sync.Mutex
	fails   int
	calls   int
	written []domain.BatchResult
}

func (w *flakyWriter) Put(_ context.Context, res domain.BatchResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.fails {
		return errors.New("connection refused")
	}
	w.written = append(w.written, res)
	return nil
}

type countingNotifier struct {
	mu   sync.Mutex
	jobs []string
}

func (n *countingNotifier) Notify(_ context.Context, jobID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, jobID)
	return nil
}

var fast = backoff.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: time.Millisecond}

func outcomes() []domain.ItemOutcome {
	return []domain.ItemOutcome{
		domain.Succeeded(domain.Item{Key: "2", Index: 2, Filename: "c.png"}, []string{"c.glb"}),
		domain.Failed(domain.Item{Key: "0", Index: 0, Filename: "a.png"}, "remote fault"),
		domain.Succeeded(domain.Item{Key: "1", Index: 1, Filename: "b.png"}, []string{"b.glb"}),
	}
}

func TestCollectOrdersAndCounts(t *testing.T) {
	s, _ := kvtest.New(t)
	store := result.NewStore(s, time.Hour)
	n := &countingNotifier{}

	New(store, n, fast).Collect(context.Background(), "job", outcomes())

	res, ok, err := store.Get(context.Background(), "job")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, res.Items, 3)
	assert.Equal(t, "0", res.Items[0].Key)
	assert.Equal(t, "1", res.Items[1].Key)
	assert.Equal(t, "2", res.Items[2].Key)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"job"}, n.jobs)
}

func TestCollectRetriesStoreFaults(t *testing.T) {
	w := &flakyWriter{fails: 2}
	n := &countingNotifier{}

	New(w, n, fast).Collect(context.Background(), "job", outcomes())

	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
	assert.Equal(t, []string{"job"}, n.jobs)
}

func TestCollectGivesUpWithoutNotify(t *testing.T) {
	w := &flakyWriter{fails: 10}
	n := &countingNotifier{}

	New(w, n, fast).Collect(context.Background(), "job", outcomes())

	assert.Equal(t, 3, w.calls)
	assert.Empty(t, n.jobs)
}

func TestCollectTwiceKeepsFirstResult(t *testing.T) {
	s, _ := kvtest.New(t)
	store := result.NewStore(s, time.Hour)
	agg := New(store, nil, fast)

	agg.Collect(context.Background(), "job", outcomes())
	agg.Collect(context.Background(), "job", nil)

	res, ok, err := store.Get(context.Background(), "job")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, res.Items, 3)
}
