package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	mio "github.com/you-humble/meshbatch/core/libs/minio"
)

type MinIO struct {
	db       *minio.Client
	bucket   string
	basePath string
}

func NewMinIO(ctx context.Context, cfg mio.Config, basePath string) (*MinIO, error) {
	client, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	basePath = strings.Trim(basePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &MinIO{
		db:       client,
		bucket:   cfg.Bucket,
		basePath: basePath,
	}, nil
}

func (s *MinIO) Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	object, err := s.objectName(name)
	if err != nil {
		return 0, "", err
	}

	if size <= 0 {
		size = -1
	}

	hasher := sha256.New()
	info, err := s.db.PutObject(ctx, s.bucket, object, io.TeeReader(reader, hasher), size, minio.PutObjectOptions{})
	if err != nil {
		return 0, "", fmt.Errorf("put object: %w", err)
	}

	return info.Size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *MinIO) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	object, err := s.objectName(name)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object: %w", err)
	}

	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}

	return obj, st.Size, nil
}

func (s *MinIO) Exists(ctx context.Context, name string) (bool, error) {
	object, err := s.objectName(name)
	if err != nil {
		return false, err
	}

	_, err = s.db.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return true, nil
	case isNoSuchKey(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat object: %w", err)
	}
}

func (s *MinIO) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	object, err := s.objectName(name)
	if err != nil {
		return err
	}

	err = s.db.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *MinIO) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	objects := s.db.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.basePath,
		Recursive: true,
	})
	for info := range objects {
		if info.Err != nil {
			continue
		}
		if !info.LastModified.Before(cutoff) {
			continue
		}

		err := s.db.RemoveObject(ctx, s.bucket, info.Key, minio.RemoveObjectOptions{})
		if err != nil {
			return fmt.Errorf("remove old object %s: %w", info.Key, err)
		}
	}

	return nil
}

func (s *MinIO) objectName(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return s.basePath + clean, nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == minio.NoSuchKey
	}
	return minio.ToErrorResponse(err).Code == minio.NoSuchKey
}
