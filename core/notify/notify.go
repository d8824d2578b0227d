// Package notify carries "job changed" signals from writers to status
// watchers. A signal carries no payload; watchers re-read the stores.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

type Notifier interface {
	Notify(ctx context.Context, jobID string) error
}

type Subscriber interface {
	// Subscribe returns a channel that receives a signal after each change
	// of jobID and a function releasing the subscription.
	Subscribe(ctx context.Context, jobID string) (<-chan struct{}, func(), error)
}

// NATS fans signals out over core NATS subjects <prefix>.<job id>, so
// writers and watchers may live in different processes.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

func NewNATS(nc *nats.Conn, prefix string) *NATS {
	return &NATS{nc: nc, prefix: prefix}
}

func (n *NATS) Notify(_ context.Context, jobID string) error {
	if err := n.nc.Publish(n.subject(jobID), nil); err != nil {
		return fmt.Errorf("nats publish change %s: %w", jobID, err)
	}
	return nil
}

func (n *NATS) Subscribe(_ context.Context, jobID string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	sub, err := n.nc.Subscribe(n.subject(jobID), func(*nats.Msg) {
		signal(ch)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("nats subscribe %s: %w", jobID, err)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				slog.Warn("nats unsubscribe",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return ch, unsub, nil
}

func (n *NATS) subject(jobID string) string {
	return n.prefix + "." + jobID
}

// Bus is the in-process variant.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan struct{})}
}

func (b *Bus) Notify(_ context.Context, jobID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[jobID] {
		signal(ch)
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, jobID string) (<-chan struct{}, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)
	b.subs[jobID] = append(b.subs[jobID], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subs[jobID]
			for i, c := range subs {
				if c == ch {
					b.subs[jobID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
		})
	}
	return ch, unsub, nil
}

func (b *Bus) subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}

// signal never blocks. A pending signal already covers the new change.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
