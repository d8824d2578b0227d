package filestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return l
}

func read(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	n, hash, err := l.Save(ctx, bytes.NewReader([]byte("png bytes")), "job/0.png", 9)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
	assert.Len(t, hash, 64)

	ok, err := l.Exists(ctx, "job/0.png")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, size, err := l.Open(ctx, "job/0.png")
	require.NoError(t, err)
	assert.EqualValues(t, 9, size)
	assert.Equal(t, "png bytes", read(t, rc))

	require.NoError(t, l.Delete(ctx, "job/0.png"))
	require.NoError(t, l.Delete(ctx, "job/0.png"))

	_, _, err = l.Open(ctx, "job/0.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	for _, name := range []string{"", "  ", "../etc/passwd", "a/../../b"} {
		_, _, err := l.Save(ctx, bytes.NewReader(nil), name, 0)
		assert.Error(t, err, name)
	}
}

func TestLocalCleanupOlderThan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)

	_, _, err = l.Save(ctx, bytes.NewReader([]byte("old")), "old.png", 3)
	require.NoError(t, err)
	_, _, err = l.Save(ctx, bytes.NewReader([]byte("new")), "new.png", 3)
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.png"), past, past))

	require.NoError(t, l.CleanupOlderThan(ctx, time.Hour))

	ok, err := l.Exists(ctx, "old.png")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = l.Exists(ctx, "new.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreReplicatesAndReadsThrough(t *testing.T) {
	ctx := context.Background()
	local, remote := newLocal(t), newLocal(t)

	s := New(ctx, local, remote, Options{QueueSize: 4, Workers: 2, MaxRetries: 1})

	_, _, err := s.Save(ctx, bytes.NewReader([]byte("mesh")), "job/0.glb", 4)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	ok, err := remote.Exists(ctx, "job/0.glb")
	require.NoError(t, err)
	assert.True(t, ok, "file replicated")

	// gone locally, still served from the remote copy
	require.NoError(t, local.Delete(ctx, "job/0.glb"))
	rc, _, err := s.Open(ctx, "job/0.glb")
	require.NoError(t, err)
	assert.Equal(t, "mesh", read(t, rc))

	ok, err = s.Exists(ctx, "job/0.glb")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "job/0.glb"))
	_, _, err = s.Open(ctx, "job/0.glb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveAfterCloseStaysLocal(t *testing.T) {
	ctx := context.Background()
	local, remote := newLocal(t), newLocal(t)

	s := New(ctx, local, remote, Options{})
	require.NoError(t, s.Close(ctx))

	_, _, err := s.Save(ctx, bytes.NewReader([]byte("x")), "late.png", 1)
	require.NoError(t, err)

	ok, err := remote.Exists(ctx, "late.png")
	require.NoError(t, err)
	assert.False(t, ok)
}
