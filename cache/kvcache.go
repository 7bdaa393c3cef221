package cache

import (
	"context"

	"github.com/goliatone/go-repository-mirror/repos"
)

// KVCache is a repository shaped store used purely as a cache. It has the read surface
// of a key-value repository plus bulk writes, and it publishes no change events:
// consumers observe changes only through the wrapper that owns the store.
type KVCache[K comparable, V any] interface {
	repos.ReadKeyValueRepo[K, V]
	Set(ctx context.Context, toSet map[K]V) error
	Unset(ctx context.Context, keys []K) error
	Clear(ctx context.Context) error
}

// SetOne stores a single entry.
func SetOne[K comparable, V any](ctx context.Context, c KVCache[K, V], k K, v V) error {
	return c.Set(ctx, map[K]V{k: v})
}

// UnsetOne removes a single entry.
func UnsetOne[K comparable, V any](ctx context.Context, c KVCache[K, V], k K) error {
	return c.Unset(ctx, []K{k})
}
