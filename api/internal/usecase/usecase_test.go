package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/meshbatch/api/internal/domain"
	core "github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/filestore"
	"github.com/you-humble/meshbatch/core/kv/kvtest"
	"github.com/you-humble/meshbatch/core/ownership"
)

type fakeDispatcher struct {
	jobID  string
	items  []core.Item
	params map[string]string
	err    error

	failed []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, jobID string, items []core.Item, params map[string]string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.jobID, f.items, f.params = jobID, items, params
	return len(items), nil
}

func (f *fakeDispatcher) ForceFail(_ context.Context, jobID, key, reason string) error {
	f.failed = append(f.failed, jobID+"/"+key+":"+reason)
	return nil
}

type fakeProjector struct {
	snaps map[string]core.Snapshot
}

func (f *fakeProjector) Poll(_ context.Context, jobID string) (core.Snapshot, error) {
	snap, ok := f.snaps[jobID]
	if !ok {
		return core.Snapshot{}, core.ErrJobNotFound
	}
	return snap, nil
}

func (f *fakeProjector) Stream(ctx context.Context, jobID string) iter.Seq2[core.Snapshot, error] {
	return func(yield func(core.Snapshot, error) bool) {
		yield(f.Poll(ctx, jobID))
	}
}

type fakeCleaner struct {
	evicted []string
}

func (f *fakeCleaner) Cleanup(_ context.Context, jobID string) error {
	f.evicted = append(f.evicted, jobID)
	return nil
}

type fixture struct {
	uc         *usecase
	files      *filestore.Local
	dispatcher *fakeDispatcher
	projector  *fakeProjector
	cleaner    *fakeCleaner
	owners     *ownership.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, _ := kvtest.New(t)
	files, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		files:      files,
		dispatcher: &fakeDispatcher{},
		projector:  &fakeProjector{snaps: map[string]core.Snapshot{}},
		cleaner:    &fakeCleaner{},
		owners:     ownership.NewStore(s, time.Hour),
	}
	f.uc = New(3, files, f.dispatcher, f.owners, f.projector, f.cleaner)
	return f
}

func upload(name, body string) domain.Upload {
	return domain.Upload{Filename: name, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestSubmitStoresAndDispatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.uc.Submit(ctx, "alice", []domain.Upload{
		upload("chair.PNG", "a"),
		upload("table.jpg", "bb"),
	}, map[string]string{"quality": "high"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 2, resp.QueuedItemCount)
	assert.Equal(t, resp.JobID, f.dispatcher.jobID)
	assert.Equal(t, "high", f.dispatcher.params["quality"])

	require.Len(t, f.dispatcher.items, 2)
	first := f.dispatcher.items[0]
	assert.Equal(t, "0", first.Key)
	assert.Equal(t, "chair.PNG", first.Filename)
	assert.Equal(t, resp.JobID+"/0.png", first.Input)
	assert.Equal(t, 1, f.dispatcher.items[1].Index)

	for _, it := range f.dispatcher.items {
		ok, err := f.files.Exists(ctx, it.Input)
		require.NoError(t, err)
		assert.True(t, ok, it.Input)
	}

	owner, bound, err := f.owners.OwnerOf(ctx, resp.JobID)
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, "alice", owner)
}

func TestSubmitRejectsInvalidBatch(t *testing.T) {
	tests := []struct {
		name    string
		uploads []domain.Upload
	}{
		{"too many", []domain.Upload{upload("a.png", "x"), upload("b.png", "x"), upload("c.png", "x"), upload("d.png", "x")}},
		{"unsupported type", []domain.Upload{upload("a.png", "x"), upload("model.obj", "x")}},
		{"empty file", []domain.Upload{upload("a.webp", "")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.uc.Submit(context.Background(), "alice", tt.uploads, nil)
			assert.ErrorIs(t, err, core.ErrInvalidBatch)
			assert.Empty(t, f.dispatcher.jobID)
		})
	}
}

func TestSubmitEmptyBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.uc.Submit(ctx, "alice", nil, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.JobID)
	assert.Zero(t, resp.QueuedItemCount)
	assert.Equal(t, resp.JobID, f.dispatcher.jobID)
	assert.Empty(t, f.dispatcher.items)

	owner, bound, err := f.owners.OwnerOf(ctx, resp.JobID)
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, "alice", owner)
}

type recordingFiles struct {
	*filestore.Local
	saved []string
}

func (r *recordingFiles) Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error) {
	r.saved = append(r.saved, name)
	return r.Local.Save(ctx, reader, name, size)
}

func TestSubmitDiscardsUploadsWhenDispatchFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	files := &recordingFiles{Local: f.files}
	f.dispatcher.err = errors.New("redis down")
	uc := New(3, files, f.dispatcher, f.owners, f.projector, f.cleaner)

	_, err := uc.Submit(ctx, "", []domain.Upload{upload("a.png", "x"), upload("b.jpeg", "y")}, nil)
	require.Error(t, err)

	require.Len(t, files.saved, 2)
	for _, name := range files.saved {
		ok, err := f.files.Exists(ctx, name)
		require.NoError(t, err)
		assert.False(t, ok, name)
	}
}

func TestJobScopedCallsAreAuthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.projector.snaps["job"] = core.Snapshot{JobID: "job", Status: core.JobQueued}
	require.NoError(t, f.owners.Bind(ctx, "job", "alice"))

	_, err := f.uc.Poll(ctx, "mallory", "job")
	assert.ErrorIs(t, err, core.ErrAccessDenied)
	_, err = f.uc.Stream(ctx, "mallory", "job")
	assert.ErrorIs(t, err, core.ErrAccessDenied)
	assert.ErrorIs(t, f.uc.ForceFail(ctx, "mallory", "job", "0", ""), core.ErrAccessDenied)
	assert.ErrorIs(t, f.uc.Evict(ctx, "mallory", "job"), core.ErrAccessDenied)
	assert.Empty(t, f.dispatcher.failed)
	assert.Empty(t, f.cleaner.evicted)

	snap, err := f.uc.Poll(ctx, "alice", "job")
	require.NoError(t, err)
	assert.Equal(t, core.JobQueued, snap.Status)

	require.NoError(t, f.uc.ForceFail(ctx, "alice", "job", "0", "bad input"))
	assert.Equal(t, []string{"job/0:bad input"}, f.dispatcher.failed)
	require.NoError(t, f.uc.Evict(ctx, "alice", "job"))
	assert.Equal(t, []string{"job"}, f.cleaner.evicted)
}

func TestUnboundJobIsOpen(t *testing.T) {
	f := newFixture(t)
	f.projector.snaps["job"] = core.Snapshot{JobID: "job", Status: core.JobProcessing}

	_, err := f.uc.Poll(context.Background(), "anyone", "job")
	assert.NoError(t, err)
}

func TestStreamUnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Stream(context.Background(), "alice", "missing")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.files.Save(ctx, strings.NewReader("glTF-model"), "done/0.glb", 10)
	require.NoError(t, err)

	items := []core.Item{{Key: "0", Index: 0}, {Key: "1", Index: 1}, {Key: "2", Index: 2}}
	res := core.NewBatchResult("done", []core.ItemOutcome{
		core.Succeeded(items[0], []string{"done/0.glb"}),
		core.Failed(items[1], "remote fault"),
		core.Succeeded(items[2], nil),
	}, time.Now())
	f.projector.snaps["done"] = core.Snapshot{JobID: "done", Status: core.JobCompleted, Result: &res}
	f.projector.snaps["running"] = core.Snapshot{
		JobID:  "running",
		Status: core.JobProcessing,
		Files:  []core.FileProgress{{Key: "0", Status: core.FileCompleted}},
	}

	dl, err := f.uc.Artifact(ctx, "alice", "done", "0")
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	require.NoError(t, dl.Content.Close())
	assert.Equal(t, "glTF-model", string(body))
	assert.Equal(t, "0.glb", dl.FileName)

	_, err = f.uc.Artifact(ctx, "alice", "done", "1")
	assert.ErrorIs(t, err, domain.ErrItemFailed)
	_, err = f.uc.Artifact(ctx, "alice", "done", "2")
	assert.ErrorIs(t, err, domain.ErrNoArtifact)
	_, err = f.uc.Artifact(ctx, "alice", "done", "9")
	assert.ErrorIs(t, err, core.ErrItemNotFound)
	_, err = f.uc.Artifact(ctx, "alice", "running", "0")
	assert.ErrorIs(t, err, core.ErrNotReady)
	_, err = f.uc.Artifact(ctx, "alice", "running", "5")
	assert.ErrorIs(t, err, core.ErrItemNotFound)
}
