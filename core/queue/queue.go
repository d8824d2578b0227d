// Package queue puts units of work on the JetStream work stream.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/you-humble/meshbatch/core/domain"
)

const (
	HeaderJobID   = "Meshbatch-Job"
	HeaderItemKey = "Meshbatch-Item"
)

// StreamConfig describes the work stream. Units are removed once acked and
// de-duplicated by message id inside the window.
func StreamConfig(name, subject string, maxAge time.Duration) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       name,
		Subjects:   []string{subject},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Replicas:   1,
		MaxAge:     maxAge,
		Duplicates: 2 * time.Minute,
	}
}

type queue struct {
	js      nats.JetStreamContext
	subject string
}

func New(js nats.JetStreamContext, subject string) *queue {
	return &queue{
		js:      js,
		subject: subject,
	}
}

func (q *queue) Publish(ctx context.Context, u domain.Unit) error {
	if u.JobID == "" || u.Item.Key == "" {
		return fmt.Errorf("%w: unit without job id or item key", domain.ErrInvalidBatch)
	}

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode unit %s: %w", u.Ref(), err)
	}

	msg := &nats.Msg{
		Subject: q.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(HeaderJobID, u.JobID)
	msg.Header.Set(HeaderItemKey, u.Item.Key)

	ack, err := q.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(u.Ref()))
	if err != nil {
		return fmt.Errorf("publish unit %s: %w", u.Ref(), err)
	}

	slog.Debug(
		"unit enqueued",
		slog.String("job_id", u.JobID),
		slog.String("item_key", u.Item.Key),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate),
	)

	return nil
}

// Decode reads a unit back from the payload of a work message.
func Decode(data []byte) (domain.Unit, error) {
	var u domain.Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return u, fmt.Errorf("decode unit: %w", err)
	}
	if u.JobID == "" || u.Item.Key == "" {
		return u, fmt.Errorf("%w: unit without job id or item key", domain.ErrInvalidBatch)
	}
	return u, nil
}
