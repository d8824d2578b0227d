package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type replicateJob struct {
	name    string
	size    int64
	hash    string
	retries int
}

// replicator copies freshly saved local files to the remote backend in the
// background. A failed copy goes back to the queue until maxRetries.
type replicator struct {
	local  Backend
	remote Backend

	queue      chan replicateJob
	workers    int
	maxRetries int

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newReplicator(local, remote Backend, queueSize, workers, maxRetries int) *replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &replicator{
		local:      local,
		remote:     remote,
		queue:      make(chan replicateJob, queueSize),
		workers:    workers,
		maxRetries: maxRetries,
		cancel:     func() {},
	}
}

func (r *replicator) start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(r.workers)
	for range r.workers {
		go r.work(ctx)
	}
}

// stop lets the workers drain what is queued, or gives up when ctx ends.
func (r *replicator) stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	case <-done:
	}

	r.cancel()
	slog.Info("replicator stopped")
	return nil
}

func (r *replicator) enqueue(job replicateJob) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}

	select {
	case r.queue <- job:
		return true
	default:
		return false
	}
}

func (r *replicator) work(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.handle(ctx, job)
		}
	}
}

func (r *replicator) handle(ctx context.Context, job replicateJob) {
	err := r.copy(ctx, job)
	if err == nil {
		return
	}

	log := slog.With(
		slog.String("filename", job.name),
		slog.Int("retries", job.retries),
		slog.String("error", err.Error()),
	)

	if job.retries >= r.maxRetries {
		log.Error("replication failed, max retries exceeded")
		return
	}

	job.retries++
	if !r.enqueue(job) {
		log.Error("replication failed and queue is unavailable, dropping job")
		return
	}
	log.Warn("replication failed, job requeued")
}

func (r *replicator) copy(ctx context.Context, job replicateJob) error {
	rc, size, err := r.local.Open(ctx, job.name)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer rc.Close()

	if job.size > 0 {
		size = job.size
	}

	written, hash, err := r.remote.Save(ctx, rc, job.name, size)
	if err != nil {
		return fmt.Errorf("save to remote: %w", err)
	}
	if written != size {
		return fmt.Errorf("remote save wrote %d of %d bytes", written, size)
	}
	if job.hash != "" && hash != "" && job.hash != hash {
		return fmt.Errorf("hash mismatch: local=%s remote=%s", job.hash, hash)
	}

	slog.Debug("file replicated",
		slog.String("filename", job.name),
		slog.Int64("size", written),
	)
	return nil
}
