package ownership

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/meshbatch/core/kv/kvtest"
)

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	s, mr := kvtest.New(t)
	store := NewStore(s, time.Hour)

	ok, err := store.Authorize(ctx, "job", "alice")
	require.NoError(t, err)
	assert.True(t, ok, "unbound job is open to anyone")

	require.NoError(t, store.Bind(ctx, "job", "alice"))

	owner, bound, err := store.OwnerOf(ctx, "job")
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, "alice", owner)

	ok, err = store.Authorize(ctx, "job", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Authorize(ctx, "job", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Hour + time.Second)

	_, bound, err = store.OwnerOf(ctx, "job")
	require.NoError(t, err)
	assert.False(t, bound)

	ok, err = store.Authorize(ctx, "job", "bob")
	require.NoError(t, err)
	assert.True(t, ok, "expired binding falls back to the permissive default")
}

func TestBindUpsertsAndRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := kvtest.New(t)
	store := NewStore(s, time.Hour)

	require.NoError(t, store.Bind(ctx, "job", "alice"))
	mr.FastForward(50 * time.Minute)
	require.NoError(t, store.Bind(ctx, "job", "bob"))
	mr.FastForward(50 * time.Minute)

	owner, bound, err := store.OwnerOf(ctx, "job")
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, "bob", owner)
}

func TestBindRejectsEmptyOwner(t *testing.T) {
	s, _ := kvtest.New(t)
	store := NewStore(s, time.Hour)

	assert.Error(t, store.Bind(context.Background(), "job", ""))
}
