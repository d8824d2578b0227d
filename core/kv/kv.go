// Package kv stores JSON records in Redis under string keys with a TTL and
// offers a single-key atomic read-modify-write built on WATCH/MULTI.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound = errors.New("kv: key not found")
	// ErrSkip may be returned by an Update mutator to leave the record as is.
	ErrSkip     = errors.New("kv: skip write")
	ErrConflict = errors.New("kv: too many concurrent writers")
)

const defaultMaxRetries = 64

type validator interface {
	Validate() error
}

type Store struct {
	rdb        redis.UniversalClient
	maxRetries int
}

func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, maxRetries: defaultMaxRetries}
}

func (s *Store) Client() redis.UniversalClient {
	return s.rdb
}

func Get[T any](ctx context.Context, s *Store, key string) (T, error) {
	var rec T

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := decode(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

// Set overwrites key and (re)starts its TTL.
func (s *Store) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetNX writes key only if it does not exist yet.
func (s *Store) SetNX(ctx context.Context, key string, v any, ttl time.Duration) (bool, error) {
	data, err := encode(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}

	ok, err := s.rdb.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Update reads the record under key, applies fn and writes it back with a
// fresh TTL in one optimistic transaction. fn may run more than once when
// another writer races on the same key, so it must only derive its effects
// from the record it is given. A missing key yields ErrNotFound and fn is
// not called.
func Update[T any](ctx context.Context, s *Store, key string, ttl time.Duration, fn func(*T) error) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get %s: %w", key, err)
		}

		var rec T
		if err := decode(raw, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		if err := fn(&rec); err != nil {
			return err
		}

		data, err := encode(&rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	for range s.maxRetries {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrSkip):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return err
		}
	}

	return fmt.Errorf("update %s: %w", key, ErrConflict)
}

func encode(v any) ([]byte, error) {
	if vv, ok := v.(validator); ok {
		if err := vv.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(v)
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	if vv, ok := v.(validator); ok {
		return vv.Validate()
	}
	return nil
}
