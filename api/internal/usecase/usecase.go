package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/you-humble/meshbatch/api/internal/domain"
	core "github.com/you-humble/meshbatch/core/domain"
)

var allowedExt = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

type FileStore interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, filename string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, items []core.Item, params map[string]string) (int, error)
	ForceFail(ctx context.Context, jobID, key, reason string) error
}

type Ownership interface {
	Bind(ctx context.Context, jobID, owner string) error
	Authorize(ctx context.Context, jobID, requester string) (bool, error)
}

type Projector interface {
	Poll(ctx context.Context, jobID string) (core.Snapshot, error)
	Stream(ctx context.Context, jobID string) iter.Seq2[core.Snapshot, error]
}

type ProgressCleaner interface {
	Cleanup(ctx context.Context, jobID string) error
}

type usecase struct {
	maxFiles   int
	fileStore  FileStore
	dispatcher Dispatcher
	ownership  Ownership
	projector  Projector
	progress   ProgressCleaner
}

func New(
	maxFiles int,
	fileStore FileStore,
	dispatcher Dispatcher,
	ownership Ownership,
	projector Projector,
	progress ProgressCleaner,
) *usecase {
	return &usecase{
		maxFiles:   maxFiles,
		fileStore:  fileStore,
		dispatcher: dispatcher,
		ownership:  ownership,
		projector:  projector,
		progress:   progress,
	}
}

// Submit stores the images and dispatches them as one batch. Nothing is
// stored or dispatched when any upload is rejected. A batch without images
// is dispatched too and completes at once with an empty result.
func (uc *usecase) Submit(
	ctx context.Context,
	owner string,
	uploads []domain.Upload,
	params map[string]string,
) (core.SubmitResponse, error) {
	if err := uc.validate(uploads); err != nil {
		return core.SubmitResponse{}, err
	}

	jobID := uuid.NewString()
	log := slog.With(slog.String("job_id", jobID))

	items := make([]core.Item, 0, len(uploads))
	for i, up := range uploads {
		name := path.Join(jobID, strconv.Itoa(i)+strings.ToLower(filepath.Ext(up.Filename)))
		if _, _, err := uc.fileStore.Save(ctx, up.Content, name, up.Size); err != nil {
			uc.discard(ctx, items)
			return core.SubmitResponse{}, fmt.Errorf("save %s: %w", up.Filename, err)
		}

		items = append(items, core.Item{
			Key:      strconv.Itoa(i),
			Index:    i,
			Filename: filepath.Base(up.Filename),
			Input:    name,
		})
	}

	if owner != "" {
		if err := uc.ownership.Bind(ctx, jobID, owner); err != nil {
			uc.discard(ctx, items)
			return core.SubmitResponse{}, fmt.Errorf("bind owner: %w", err)
		}
	}

	queued, err := uc.dispatcher.Dispatch(ctx, jobID, items, params)
	if err != nil {
		uc.discard(ctx, items)
		return core.SubmitResponse{}, fmt.Errorf("dispatch: %w", err)
	}

	log.Info("batch submitted", slog.Int("items", len(items)), slog.Int("queued", queued))
	return core.SubmitResponse{JobID: jobID, QueuedItemCount: queued}, nil
}

func (uc *usecase) Poll(ctx context.Context, requester, jobID string) (core.Snapshot, error) {
	if err := uc.authorize(ctx, jobID, requester); err != nil {
		return core.Snapshot{}, err
	}
	return uc.projector.Poll(ctx, jobID)
}

// Stream checks access and existence up front so callers can answer with a
// plain error before switching to a streaming response.
func (uc *usecase) Stream(ctx context.Context, requester, jobID string) (iter.Seq2[core.Snapshot, error], error) {
	if err := uc.authorize(ctx, jobID, requester); err != nil {
		return nil, err
	}
	if _, err := uc.projector.Poll(ctx, jobID); err != nil {
		return nil, err
	}
	return uc.projector.Stream(ctx, jobID), nil
}

func (uc *usecase) Artifact(ctx context.Context, requester, jobID, key string) (domain.DownloadResult, error) {
	snap, err := uc.Poll(ctx, requester, jobID)
	if err != nil {
		return domain.DownloadResult{}, err
	}

	if snap.Result == nil {
		for _, f := range snap.Files {
			if f.Key == key {
				return domain.DownloadResult{}, core.ErrNotReady
			}
		}
		return domain.DownloadResult{}, core.ErrItemNotFound
	}

	out, ok := snap.Result.Outcome(key)
	switch {
	case !ok:
		return domain.DownloadResult{}, core.ErrItemNotFound
	case !out.Success:
		return domain.DownloadResult{}, fmt.Errorf("%w: %s", domain.ErrItemFailed, out.Reason)
	case len(out.Artifacts) == 0:
		return domain.DownloadResult{}, domain.ErrNoArtifact
	}

	f, size, err := uc.fileStore.Open(ctx, out.Artifacts[0])
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("open artifact: %w", err)
	}

	return domain.DownloadResult{
		FileName: path.Base(out.Artifacts[0]),
		Size:     size,
		Content:  f,
	}, nil
}

func (uc *usecase) ForceFail(ctx context.Context, requester, jobID, key, reason string) error {
	if err := uc.authorize(ctx, jobID, requester); err != nil {
		return err
	}
	return uc.dispatcher.ForceFail(ctx, jobID, key, reason)
}

// Evict drops progress tracking early. The final result, if any, stays.
func (uc *usecase) Evict(ctx context.Context, requester, jobID string) error {
	if err := uc.authorize(ctx, jobID, requester); err != nil {
		return err
	}
	return uc.progress.Cleanup(ctx, jobID)
}

func (uc *usecase) authorize(ctx context.Context, jobID, requester string) error {
	ok, err := uc.ownership.Authorize(ctx, jobID, requester)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return core.ErrAccessDenied
	}
	return nil
}

func (uc *usecase) validate(uploads []domain.Upload) error {
	if len(uploads) > uc.maxFiles {
		return fmt.Errorf("%w: %d files, at most %d allowed", core.ErrInvalidBatch, len(uploads), uc.maxFiles)
	}

	for _, up := range uploads {
		ext := strings.ToLower(filepath.Ext(up.Filename))
		if _, ok := allowedExt[ext]; !ok {
			return fmt.Errorf("%w: %q is not a supported image", core.ErrInvalidBatch, up.Filename)
		}
		if up.Size <= 0 {
			return fmt.Errorf("%w: %q is empty", core.ErrInvalidBatch, up.Filename)
		}
	}
	return nil
}

func (uc *usecase) discard(ctx context.Context, items []core.Item) {
	for _, it := range items {
		if err := uc.fileStore.Delete(ctx, it.Input); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("delete orphaned upload",
				slog.String("filename", it.Input),
				slog.String("error", err.Error()),
			)
		}
	}
}
