// Package kvtest runs an in-process Redis for store tests.
package kvtest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/you-humble/meshbatch/core/kv"
)

// New returns a kv.Store backed by a fresh miniredis instance that is torn
// down with the test. Use the returned server to FastForward TTLs.
func New(t testing.TB) (*kv.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return kv.New(rdb), mr
}
