// Package mesh is a mock image-to-3D backend. It takes a random amount of
// time, reports progress while "reconstructing" and stores a placeholder
// binary glTF file as the artifact.
package mesh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/genrpc"
)

var ErrInputNotFound = errors.New("input image not found")

type FileStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error)
}

type Options struct {
	MaxParallel int64         `yaml:"max_parallel"`
	Steps       int           `yaml:"steps"`
	StepDelay   time.Duration `yaml:"step_delay"`
	// FailureRate is the fraction of attempts that fail with a retryable fault.
	FailureRate float64 `yaml:"failure_rate"`
}

type MockGenerator struct {
	files FileStore
	sem   *semaphore.Weighted
	opts  Options

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockGenerator(files FileStore, opts Options) *MockGenerator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.Steps <= 0 {
		opts.Steps = 5
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = 300 * time.Millisecond
	}

	return &MockGenerator{
		files: files,
		sem:   semaphore.NewWeighted(opts.MaxParallel),
		opts:  opts,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockGenerator) Generate(ctx context.Context, req genrpc.Request, progress func(percent int) error) ([]string, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("generator busy or canceled: %w", err)
	}
	defer m.sem.Release(1)

	ok, err := m.files.Exists(ctx, req.Input)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("check input %s: %w", req.Input, err))
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, req.Input)
	}

	failAt := -1
	if m.roll() < m.opts.FailureRate {
		failAt = m.intn(m.opts.Steps)
	}

	for step := range m.opts.Steps {
		select {
		case <-time.After(m.jitter()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if step == failAt {
			return nil, domain.Transient(errors.New("reconstruction node lost"))
		}

		if err := progress((step + 1) * 100 / (m.opts.Steps + 1)); err != nil {
			return nil, err
		}
	}

	glb := placeholder(req)
	name := ArtifactName(req.JobID, req.ItemKey)
	if _, _, err := m.files.Save(ctx, bytes.NewReader(glb), name, int64(len(glb))); err != nil {
		return nil, domain.Transient(fmt.Errorf("save artifact %s: %w", name, err))
	}

	return []string{name}, nil
}

// ArtifactName is the file store name of the model generated for one item.
func ArtifactName(jobID, itemKey string) string {
	return path.Join(jobID, itemKey+".glb")
}

func (m *MockGenerator) jitter() time.Duration {
	half := int64(m.opts.StepDelay / 2)
	return time.Duration(half + m.int63n(half+1))
}

func (m *MockGenerator) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *MockGenerator) intn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Intn(n)
}

func (m *MockGenerator) int63n(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Int63n(n)
}

// placeholder builds a minimal GLB container: header plus one JSON chunk.
func placeholder(req genrpc.Request) []byte {
	doc := fmt.Sprintf(`{"asset":{"version":"2.0","generator":"meshbatch-mock"},"extras":{"source":%q}}`, req.Filename)
	for len(doc)%4 != 0 {
		doc += " "
	}

	var buf bytes.Buffer
	buf.WriteString("glTF")
	writeU32(&buf, 2)
	writeU32(&buf, uint32(12+8+len(doc)))
	writeU32(&buf, uint32(len(doc)))
	buf.WriteString("JSON")
	buf.WriteString(doc)
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
