package kv_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/meshbatch/core/kv"
	"github.com/you-humble/meshbatch/core/kv/kvtest"
)

type counter struct {
	N int `json:"n"`
}

type guarded struct {
	Name string `json:"name"`
}

func (g guarded) Validate() error {
	if g.Name == "" {
		return errors.New("empty name")
	}
	return nil
}

func TestGetMissing(t *testing.T) {
	s, _ := kvtest.New(t)

	_, err := kv.Get[counter](context.Background(), s, "nope")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSetGetAndExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := kvtest.New(t)

	require.NoError(t, s.Set(ctx, "c", counter{N: 7}, time.Minute))

	got, err := kv.Get[counter](ctx, s, "c")
	require.NoError(t, err)
	assert.Equal(t, 7, got.N)

	mr.FastForward(2 * time.Minute)

	_, err = kv.Get[counter](ctx, s, "c")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	s, _ := kvtest.New(t)

	ok, err := s.SetNX(ctx, "once", counter{N: 1}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "once", counter{N: 2}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := kv.Get[counter](ctx, s, "once")
	require.NoError(t, err)
	assert.Equal(t, 1, got.N)
}

func TestUpdateMissingKeyDoesNotCallMutator(t *testing.T) {
	s, _ := kvtest.New(t)

	called := false
	err := kv.Update(context.Background(), s, "missing", time.Minute, func(c *counter) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.False(t, called)
}

func TestUpdateConcurrentWritersLoseNothing(t *testing.T) {
	ctx := context.Background()
	s, _ := kvtest.New(t)
	require.NoError(t, s.Set(ctx, "c", counter{}, time.Minute))

	const writers = 40
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := kv.Update(ctx, s, "c", time.Minute, func(c *counter) error {
				c.N++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := kv.Get[counter](ctx, s, "c")
	require.NoError(t, err)
	assert.Equal(t, writers, got.N)
}

func TestUpdateSkipLeavesRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := kvtest.New(t)
	require.NoError(t, s.Set(ctx, "c", counter{N: 3}, time.Minute))

	err := kv.Update(ctx, s, "c", time.Minute, func(c *counter) error {
		c.N = 100
		return kv.ErrSkip
	})
	require.NoError(t, err)

	got, err := kv.Get[counter](ctx, s, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, got.N)
}

func TestUpdateRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := kvtest.New(t)
	require.NoError(t, s.Set(ctx, "c", counter{}, time.Minute))

	mr.FastForward(50 * time.Second)
	require.NoError(t, kv.Update(ctx, s, "c", time.Minute, func(c *counter) error {
		c.N++
		return nil
	}))
	mr.FastForward(50 * time.Second)

	got, err := kv.Get[counter](ctx, s, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, got.N)
}

func TestValidationAtBoundary(t *testing.T) {
	ctx := context.Background()
	s, _ := kvtest.New(t)

	err := s.Set(ctx, "g", guarded{}, time.Minute)
	assert.Error(t, err)

	require.NoError(t, s.Client().Set(ctx, "g", `{"name":""}`, time.Minute).Err())
	_, err = kv.Get[guarded](ctx, s, "g")
	assert.Error(t, err)
}
