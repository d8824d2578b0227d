package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/queue"
)

type UnitRunner interface {
	Run(ctx context.Context, u domain.Unit) error
}

type PoolConfig struct {
	Stream     string
	Subject    string
	Consumer   string
	Size       int
	AckWait    time.Duration
	MaxDeliver int
	// Heartbeat is how often a running unit extends its ack deadline.
	Heartbeat time.Duration
}

// delivery is the acknowledgement side of a JetStream message.
type delivery interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
	InProgress(opts ...nats.AckOpt) error
}

type Pool struct {
	js     nats.JetStreamContext
	cfg    PoolConfig
	runner UnitRunner
}

func NewPool(js nats.JetStreamContext, cfg PoolConfig, runner UnitRunner) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Heartbeat <= 0 || (cfg.AckWait > 0 && cfg.Heartbeat >= cfg.AckWait) {
		cfg.Heartbeat = cfg.AckWait / 3
	}
	return &Pool{js: js, cfg: cfg, runner: runner}
}

// Run consumes units with cfg.Size workers until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	_, err := p.js.AddConsumer(p.cfg.Stream, &nats.ConsumerConfig{
		Durable:       p.cfg.Consumer,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: p.cfg.Subject,
		MaxAckPending: p.cfg.Size * 2,
		AckWait:       p.cfg.AckWait,
		MaxDeliver:    p.cfg.MaxDeliver,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer: %w", err)
	}

	sub, err := p.js.PullSubscribe(p.cfg.Subject, p.cfg.Consumer, nats.Bind(p.cfg.Stream, p.cfg.Consumer))
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe: %w", err)
	}

	slog.Info("worker pool running",
		slog.Int("workers", p.cfg.Size),
		slog.String("subject", p.cfg.Subject),
	)

	eg, egCtx := errgroup.WithContext(ctx)
	for range p.cfg.Size {
		eg.Go(func() error {
			p.work(egCtx, sub)
			return nil
		})
	}
	err = eg.Wait()

	if derr := sub.Drain(); derr != nil {
		slog.Warn("NATS subscription drain", slog.String("error", derr.Error()))
	}
	slog.Info("worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context, sub *nats.Subscription) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			p.handle(ctx, msg.Data, msg)
		}
	}
}

func (p *Pool) handle(ctx context.Context, data []byte, d delivery) {
	u, err := queue.Decode(data)
	if err != nil {
		slog.Error("drop undecodable unit", slog.String("error", err.Error()))
		if err := d.Term(); err != nil {
			slog.Warn("NATS Term", slog.String("error", err.Error()))
		}
		return
	}

	log := slog.With(slog.String("job_id", u.JobID), slog.String("item_key", u.Item.Key))

	stop := p.heartbeat(d, log)
	err = p.runner.Run(ctx, u)
	stop()

	switch {
	case err == nil, errors.Is(err, ErrAlreadyResolved):
		if errors.Is(err, ErrAlreadyResolved) {
			log.Info("unit already resolved")
		}
		if err := d.Ack(); err != nil {
			log.Warn("NATS Ack", slog.String("error", err.Error()))
		}
	default:
		log.Warn("unit returned for redelivery", slog.String("error", err.Error()))
		if err := d.Nak(); err != nil {
			log.Warn("NATS Nak", slog.String("error", err.Error()))
		}
	}
}

func (p *Pool) heartbeat(d delivery, log *slog.Logger) func() {
	if p.cfg.Heartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(p.cfg.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := d.InProgress(); err != nil {
					log.Warn("NATS InProgress", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
