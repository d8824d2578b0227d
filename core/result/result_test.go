package result

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/kv/kvtest"
)

func TestPutIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := kvtest.New(t)
	store := NewStore(s, time.Hour)

	it := domain.Item{Key: "0", Filename: "a.png"}
	first := domain.NewBatchResult("job", []domain.ItemOutcome{domain.Succeeded(it, []string{"a.glb"})}, time.Now())
	second := domain.NewBatchResult("job", []domain.ItemOutcome{domain.Failed(it, "late")}, time.Now())

	require.NoError(t, store.Put(ctx, first))
	assert.ErrorIs(t, store.Put(ctx, second), domain.ErrResultExists)

	got, ok, err := store.Get(ctx, "job")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, []string{"a.glb"}, got.Items[0].Artifacts)
}

func TestGetMissingAndExpired(t *testing.T) {
	ctx := context.Background()
	s, mr := kvtest.New(t)
	store := NewStore(s, time.Minute)

	_, ok, err := store.Get(ctx, "job")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, domain.NewBatchResult("job", nil, time.Now())))
	mr.FastForward(2 * time.Minute)

	_, ok, err = store.Get(ctx, "job")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutRejectsInvalidResult(t *testing.T) {
	s, _ := kvtest.New(t)
	store := NewStore(s, time.Hour)

	err := store.Put(context.Background(), domain.BatchResult{})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}
