package mio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/you-humble/meshbatch/core/libs/backoff"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Retry           backoff.Policy
}

// NewClient connects to MinIO and makes sure the bucket exists, retrying
// while the server is still coming up.
func NewClient(ctx context.Context, cfg Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty MinIO endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("empty MinIO bucket")
	}

	p := cfg.Retry
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Initial <= 0 {
		p.Initial = time.Second
	}
	if p.Max <= 0 {
		p.Max = 30 * time.Second
	}

	var client *minio.Client
	err := backoff.Retry(ctx, p, nil, func(ctx context.Context, attempt int) error {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("create MinIO client: %w", err)
		}
		if err := ensureBucket(ctx, c, cfg.Bucket); err != nil {
			slog.Warn("MinIO not ready",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("init MinIO failed after %d attempts: %w", p.MaxAttempts, err)
	}

	return client, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}
