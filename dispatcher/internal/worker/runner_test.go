package worker

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
	"github.com/you-humble/meshbatch/core/genrpc"
	"github.com/you-humble/meshbatch/core/kv/kvtest"
	"github.com/you-humble/meshbatch/core/libs/backoff"
	"github.com/you-humble/meshbatch/core/notify"
	"github.com/you-humble/meshbatch/core/progress"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls map[string]int
	run   func(ctx context.Context, req genrpc.Request, attempt int, onProgress func(int)) ([]string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req genrpc.Request, onProgress func(int)) ([]string, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	attempt := g.calls[req.ItemKey]
	g.calls[req.ItemKey]++
	g.mu.Unlock()

	return g.run(ctx, req, attempt, onProgress)
}

func (g *fakeGenerator) count(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[key]
}

type env struct {
	progress *progress.Store
	barrier  *barrier.Barrier
	gen      *fakeGenerator
	runner   *Runner
	fired    chan []domain.ItemOutcome
}

var fastRetry = backoff.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

func newEnv(t *testing.T, limits Limits) *env {
	t.Helper()
	s, _ := kvtest.New(t)

	e := &env{
		progress: progress.NewStore(s, time.Hour),
		gen:      &fakeGenerator{},
		fired:    make(chan []domain.ItemOutcome, 1),
	}
	e.barrier = barrier.New(s, time.Hour, func(_ context.Context, _ string, o []domain.ItemOutcome) {
		e.fired <- o
	})
	e.runner = NewRunner(e.progress, e.barrier, e.gen, notify.NewBus(), limits, fastRetry)
	return e
}

var defaultLimits = Limits{Soft: time.Second, Hard: 5 * time.Second, Liveness: time.Minute}

func items(n int) []domain.Item {
	out := make([]domain.Item, n)
	for i := range n {
		out[i] = domain.Item{
			Key:      fmt.Sprint(i),
			Index:    i,
			Filename: fmt.Sprintf("img-%d.png", i),
			Input:    fmt.Sprintf("job/%d.png", i),
		}
	}
	return out
}

func (e *env) open(t *testing.T, n int) []domain.Item {
	t.Helper()
	ctx := context.Background()
	its := items(n)
	require.NoError(t, e.progress.Init(ctx, "job", its))
	require.NoError(t, e.barrier.Open(ctx, "job", n))
	return its
}

func unit(it domain.Item) domain.Unit {
	return domain.Unit{JobID: "job", Item: it, EnqueuedAt: time.Now()}
}

func (e *env) file(t *testing.T, key string) domain.FileProgress {
	t.Helper()
	rec, err := e.progress.Get(context.Background(), "job")
	require.NoError(t, err)
	f, ok := rec.File(key)
	require.True(t, ok)
	return *f
}

func TestRunSuccessTracksProgress(t *testing.T) {
	e := newEnv(t, defaultLimits)
	its := e.open(t, 1)

	var seen []int
	e.gen.run = func(ctx context.Context, req genrpc.Request, _ int, onProgress func(int)) ([]string, error) {
		assert.Equal(t, "job/0.png", req.Input)
		for _, p := range []int{20, 10, 60} {
			onProgress(p)
			seen = append(seen, e.file(t, "0").Progress)
		}
		return []string{"job/0.glb"}, nil
	}

	require.NoError(t, e.runner.Run(context.Background(), unit(its[0])))

	assert.Equal(t, []int{20, 20, 60}, seen, "progress never goes down")
	f := e.file(t, "0")
	assert.Equal(t, domain.FileCompleted, f.Status)
	assert.Equal(t, 100, f.Progress)

	select {
	case o := <-e.fired:
		require.Len(t, o, 1)
		assert.True(t, o[0].Success)
		assert.Equal(t, []string{"job/0.glb"}, o[0].Artifacts)
	default:
		t.Fatal("barrier did not fire")
	}
}

func TestRunRetriesTransientFaults(t *testing.T) {
	e := newEnv(t, defaultLimits)
	its := e.open(t, 1)

	e.gen.run = func(_ context.Context, _ genrpc.Request, attempt int, _ func(int)) ([]string, error) {
		if attempt < 2 {
			return nil, domain.Transient(errors.New("unavailable"))
		}
		return []string{"a.glb"}, nil
	}

	require.NoError(t, e.runner.Run(context.Background(), unit(its[0])))

	assert.Equal(t, 3, e.gen.count("0"))
	assert.Equal(t, domain.FileCompleted, e.file(t, "0").Status)
}

func TestRunDoesNotRetryPermanentFaults(t *testing.T) {
	e := newEnv(t, defaultLimits)
	its := e.open(t, 1)

	e.gen.run = func(context.Context, genrpc.Request, int, func(int)) ([]string, error) {
		return nil, errors.New("unsupported image")
	}

	require.NoError(t, e.runner.Run(context.Background(), unit(its[0])))

	assert.Equal(t, 1, e.gen.count("0"))
	f := e.file(t, "0")
	assert.Equal(t, domain.FileFailed, f.Status)
	assert.Equal(t, "unsupported image", f.Error)

	o := <-e.fired
	assert.False(t, o[0].Success)
	assert.Equal(t, "unsupported image", o[0].Reason)
}

func TestRunExhaustedRetriesFail(t *testing.T) {
	e := newEnv(t, defaultLimits)
	its := e.open(t, 1)

	e.gen.run = func(context.Context, genrpc.Request, int, func(int)) ([]string, error) {
		return nil, domain.Transient(errors.New("resource exhausted"))
	}

	require.NoError(t, e.runner.Run(context.Background(), unit(its[0])))

	assert.Equal(t, fastRetry.MaxAttempts, e.gen.count("0"))
	assert.Equal(t, domain.FileFailed, e.file(t, "0").Status)
}

func TestRunHardLimitFailsUnit(t *testing.T) {
	e := newEnv(t, Limits{Soft: 10 * time.Millisecond, Hard: 50 * time.Millisecond, Liveness: time.Minute})
	its := e.open(t, 1)

	e.gen.run = func(ctx context.Context, _ genrpc.Request, _ int, _ func(int)) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	require.NoError(t, e.runner.Run(context.Background(), unit(its[0])))

	f := e.file(t, "0")
	assert.Equal(t, domain.FileFailed, f.Status)
	assert.Contains(t, f.Error, "hard time limit")

	o := <-e.fired
	assert.False(t, o[0].Success)
}

func TestRunFailureIsIsolated(t *testing.T) {
	e := newEnv(t, defaultLimits)
	its := e.open(t, 3)

	e.gen.run = func(_ context.Context, req genrpc.Request, _ int, _ func(int)) ([]string, error) {
		if req.ItemKey == "1" {
			return nil, errors.New("remote fault")
		}
		return []string{req.ItemKey + ".glb"}, nil
	}

	var wg sync.WaitGroup
	for _, it := range its {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.runner.Run(context.Background(), unit(it)))
		}()
	}
	wg.Wait()

	rec, err := e.progress.Get(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CompletedFiles)
	assert.Equal(t, 1, rec.FailedFiles)

	o := <-e.fired
	assert.Len(t, o, 3)
}

func TestRunSkipsResolvedUnits(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultLimits)
	its := e.open(t, 2)

	e.gen.run = func(context.Context, genrpc.Request, int, func(int)) ([]string, error) {
		return []string{"x.glb"}, nil
	}

	require.NoError(t, e.runner.Run(ctx, unit(its[0])))
	assert.ErrorIs(t, e.runner.Run(ctx, unit(its[0])), ErrAlreadyResolved)
	assert.Equal(t, 1, e.gen.count("0"))

	// terminal in progress but not yet reported
	require.NoError(t, e.progress.Update(ctx, "job", "1", domain.FileFailed, 0, "forced"))
	assert.ErrorIs(t, e.runner.Run(ctx, unit(its[1])), ErrAlreadyResolved)
	assert.Zero(t, e.gen.count("1"))
}

func TestRunShutdownLeavesUnitForRedelivery(t *testing.T) {
	e := newEnv(t, defaultLimits)
	its := e.open(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	e.gen.run = func(ctx context.Context, _ genrpc.Request, _ int, onProgress func(int)) ([]string, error) {
		onProgress(30)
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := e.runner.Run(ctx, unit(its[0]))
	assert.ErrorIs(t, err, context.Canceled)

	f := e.file(t, "0")
	assert.Equal(t, domain.FileProcessing, f.Status)
	assert.Equal(t, 30, f.Progress)

	reported, err := e.barrier.Reported(context.Background(), "job", "0")
	require.NoError(t, err)
	assert.False(t, reported)
}
