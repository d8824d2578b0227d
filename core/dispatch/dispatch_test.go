package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/meshbatch/core/barrier"
	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/kv/kvtest"
	"github.com/you-humble/meshbatch/core/notify"
	"github.com/you-humble/meshbatch/core/progress"
)

type fakePublisher struct {
	mu    sync.Mutex
	fail  map[string]bool
	units []domain.Unit
}

func (p *fakePublisher) Publish(_ context.Context, u domain.Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[u.Item.Key] {
		return errors.New("nats: no responders available for request")
	}
	p.units = append(p.units, u)
	return nil
}

type env struct {
	d        *Dispatcher
	progress *progress.Store
	barrier  *barrier.Barrier
	pub      *fakePublisher
	fired    chan []domain.ItemOutcome
}

func newEnv(t *testing.T) *env {
	s, _ := kvtest.New(t)
	e := &env{
		progress: progress.NewStore(s, time.Hour),
		pub:      &fakePublisher{fail: map[string]bool{}},
		fired:    make(chan []domain.ItemOutcome, 1),
	}
	e.barrier = barrier.New(s, time.Hour, func(_ context.Context, _ string, o []domain.ItemOutcome) {
		e.fired <- o
	})
	e.d = New(e.progress, e.barrier, e.pub, notify.NewBus(), time.Minute)
	return e
}

func items(n int) []domain.Item {
	out := make([]domain.Item, n)
	for i := range n {
		out[i] = domain.Item{Key: fmt.Sprint(i), Index: i, Filename: fmt.Sprintf("img-%d.png", i)}
	}
	return out
}

func TestDispatchQueuesEveryItem(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	n, err := e.d.Dispatch(ctx, "job", items(3), map[string]string{"quality": "draft"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, e.pub.units, 3)
	for i, u := range e.pub.units {
		assert.Equal(t, "job", u.JobID)
		assert.Equal(t, fmt.Sprint(i), u.Item.Key)
		assert.Equal(t, "draft", u.Params["quality"])
	}

	rec, err := e.progress.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalFiles)
	assert.False(t, rec.Started())

	refs, err := e.barrier.Overdue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestDispatchFailsUnqueuedItems(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.pub.fail["1"] = true

	n, err := e.d.Dispatch(ctx, "job", items(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := e.progress.Get(ctx, "job")
	require.NoError(t, err)
	f, ok := rec.File("1")
	require.True(t, ok)
	assert.Equal(t, domain.FileFailed, f.Status)
	assert.Contains(t, f.Error, "enqueue")

	reported, err := e.barrier.Reported(ctx, "job", "1")
	require.NoError(t, err)
	assert.True(t, reported)
}

func TestDispatchEmptyBatchCompletesAtOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	n, err := e.d.Dispatch(ctx, "job", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	select {
	case o := <-e.fired:
		assert.Empty(t, o)
	default:
		t.Fatal("empty batch did not complete")
	}
}

func TestDispatchRejectsDuplicateKeys(t *testing.T) {
	e := newEnv(t)
	its := items(2)
	its[1].Key = its[0].Key

	_, err := e.d.Dispatch(context.Background(), "job", its, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidBatch)
	assert.Empty(t, e.pub.units)
}

func TestForceFail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.d.Dispatch(ctx, "job", items(2), nil)
	require.NoError(t, err)

	require.NoError(t, e.progress.Update(ctx, "job", "0", domain.FileCompleted, 100, ""))
	require.NoError(t, e.barrier.Report(ctx, "job", domain.Succeeded(items(2)[0], []string{"0.glb"})))

	assert.ErrorIs(t, e.d.ForceFail(ctx, "job", "0", "operator"), domain.ErrIllegalTransition)
	assert.ErrorIs(t, e.d.ForceFail(ctx, "job", "9", "operator"), domain.ErrItemNotFound)
	assert.ErrorIs(t, e.d.ForceFail(ctx, "nope", "0", "operator"), domain.ErrJobNotFound)

	require.NoError(t, e.d.ForceFail(ctx, "job", "1", ""))

	rec, err := e.progress.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CompletedFiles)
	assert.Equal(t, 1, rec.FailedFiles)
	f, _ := rec.File("1")
	assert.Equal(t, "forced failure", f.Error)

	select {
	case o := <-e.fired:
		require.Len(t, o, 2)
	default:
		t.Fatal("barrier did not fire")
	}

	// a second forced failure changes nothing
	require.NoError(t, e.d.ForceFail(ctx, "job", "1", "again"))
	rec, err = e.progress.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailedFiles)
}

func TestReap(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.d.Dispatch(ctx, "job", items(3), nil)
	require.NoError(t, err)

	// "0" finished but its report never reached the barrier
	require.NoError(t, e.progress.Update(ctx, "job", "0", domain.FileCompleted, 100, ""))
	// "1" failed the same way
	require.NoError(t, e.progress.Update(ctx, "job", "1", domain.FileFailed, 0, "remote fault"))
	// "2" is stuck in flight
	require.NoError(t, e.progress.Update(ctx, "job", "2", domain.FileProcessing, 40, ""))

	for _, key := range []string{"0", "1", "2"} {
		done, err := e.d.Reap(ctx, "job", key, time.Now())
		require.NoError(t, err)
		assert.True(t, done, key)
	}

	var got []domain.ItemOutcome
	select {
	case got = <-e.fired:
	default:
		t.Fatal("barrier did not fire")
	}
	require.Len(t, got, 3)

	byKey := map[string]domain.ItemOutcome{}
	for _, o := range got {
		byKey[o.Key] = o
	}
	assert.True(t, byKey["0"].Success)
	assert.Equal(t, "remote fault", byKey["1"].Reason)
	assert.Equal(t, "unit deadline exceeded", byKey["2"].Reason)

	refs, err := e.barrier.Overdue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestReapUnknownJobUntracks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.barrier.Track(ctx, "gone", "0", time.Now()))
	done, err := e.d.Reap(ctx, "gone", "0", time.Now())
	require.NoError(t, err)
	assert.True(t, done)

	refs, err := e.barrier.Overdue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestReapKeepsQueuedUnit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.d.Dispatch(ctx, "job", items(2), nil)
	require.NoError(t, err)
	rec, err := e.progress.Get(ctx, "job")
	require.NoError(t, err)

	// nothing started yet, the queue is only backed up
	refs, err := e.barrier.Overdue(ctx, rec.CreatedAt.Add(59*time.Second))
	require.NoError(t, err)
	assert.Empty(t, refs)

	// an early deadline, e.g. from a runner that died before marking the
	// unit processing, is moved out to the queue wait
	require.NoError(t, e.barrier.Track(ctx, "job", "0", rec.CreatedAt))
	done, err := e.d.Reap(ctx, "job", "0", rec.CreatedAt.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, done)

	refs, err = e.barrier.Overdue(ctx, rec.CreatedAt.Add(59*time.Second))
	require.NoError(t, err)
	assert.Empty(t, refs)

	rec, err = e.progress.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, domain.FilePending, rec.Files[0].Status)
	assert.Zero(t, rec.FailedFiles)

	// past the queue wait the unit counts as lost
	for _, key := range []string{"0", "1"} {
		done, err := e.d.Reap(ctx, "job", key, rec.CreatedAt.Add(61*time.Second))
		require.NoError(t, err)
		assert.True(t, done, key)
	}

	select {
	case got := <-e.fired:
		require.Len(t, got, 2)
		for _, o := range got {
			assert.False(t, o.Success)
			assert.Equal(t, "unit not started within 1m0s", o.Reason)
		}
	default:
		t.Fatal("barrier did not fire")
	}
}
