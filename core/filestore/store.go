// Package filestore keeps uploaded images and generated artifacts on local
// disk and replicates them to object storage in the background.
package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrNotFound = errors.New("file not found")

// Backend is one storage location.
type Backend interface {
	Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) error
}

type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
}

// Store writes locally, replicates to remote and reads from whichever has
// the file.
type Store struct {
	local      Backend
	remote     Backend
	replicator *replicator
}

// New starts the replication workers; they stop with ctx or Close.
func New(ctx context.Context, local, remote Backend, opts Options) *Store {
	repl := newReplicator(local, remote, opts.QueueSize, opts.Workers, opts.MaxRetries)
	repl.start(ctx)

	return &Store{
		local:      local,
		remote:     remote,
		replicator: repl,
	}
}

// Close waits for queued replications, bounded by ctx.
func (s *Store) Close(ctx context.Context) error {
	return s.replicator.stop(ctx)
}

func (s *Store) Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error) {
	written, hash, err := s.local.Save(ctx, reader, name, size)
	if err != nil {
		return 0, "", err
	}

	ok := s.replicator.enqueue(replicateJob{name: name, size: written, hash: hash})
	if !ok {
		slog.Error("replication queue full, file saved only locally",
			slog.String("filename", name),
			slog.Int64("size", written),
		)
	}

	return written, hash, nil
}

// Open reads the local copy and falls back to the remote one, which is where
// files written by another process live.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	rc, size, err := s.local.Open(ctx, name)
	if err == nil {
		return rc, size, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, 0, err
	}

	return s.remote.Open(ctx, name)
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.local.Exists(ctx, name)
	if err != nil || ok {
		return ok, err
	}
	return s.remote.Exists(ctx, name)
}

// Delete removes both copies and returns the first failure.
func (s *Store) Delete(ctx context.Context, name string) error {
	var firstErr error

	if err := s.local.Delete(ctx, name); err != nil {
		firstErr = err
		slog.Warn("delete local file", slog.String("filename", name), slog.String("error", err.Error()))
	}

	if err := s.remote.Delete(ctx, name); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		slog.Warn("delete remote file", slog.String("filename", name), slog.String("error", err.Error()))
	}

	return firstErr
}

func (s *Store) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	eg, eCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return s.local.CleanupOlderThan(eCtx, maxAge)
	})
	eg.Go(func() error {
		return s.remote.CleanupOlderThan(eCtx, maxAge)
	})

	return eg.Wait()
}
