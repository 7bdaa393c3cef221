package repositorycache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

type lookup[V any] struct {
	value V
	found bool
}

// load runs fetch once for every concurrent caller asking for key. The shared call does
// not inherit any caller's cancellation; a caller whose ctx ends stops waiting and gets
// its own ctx error while the others keep the shared result.
func load[V any](ctx context.Context, g *singleflight.Group, key string, fetch func(ctx context.Context) (lookup[V], error)) (lookup[V], error) {
	shared := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) {
		return fetch(shared)
	})
	select {
	case <-ctx.Done():
		return lookup[V]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return lookup[V]{}, res.Err
		}
		return res.Val.(lookup[V]), nil
	}
}

// ReadKeyValueCacheRepo is a read-through cache in front of a key-value repository.
// Point lookups are served from the cache when possible; every other read goes to the origin.
type ReadKeyValueCacheRepo[K comparable, V any] struct {
	origin repos.ReadKeyValueRepo[K, V]
	cache  cache.KVCache[K, V]
	group  singleflight.Group
	opts   options
}

var (
	_ repos.ReadKeyValueRepo[string, int] = (*ReadKeyValueCacheRepo[string, int])(nil)
	_ repos.Invalidator                   = (*ReadKeyValueCacheRepo[string, int])(nil)
)

// NewReadKeyValue wraps origin. A nil store defaults to an empty cache.Map.
func NewReadKeyValue[K comparable, V any](origin repos.ReadKeyValueRepo[K, V], store cache.KVCache[K, V], opts ...Option) *ReadKeyValueCacheRepo[K, V] {
	if store == nil {
		store = cache.NewMap[K, V]()
	}
	return &ReadKeyValueCacheRepo[K, V]{
		origin: origin,
		cache:  store,
		opts:   newOptions[V](opts),
	}
}

// Get returns the cached value for k or loads it from the origin and caches it.
// Concurrent misses for the same key share a single origin call.
func (r *ReadKeyValueCacheRepo[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	if !refreshRequested(ctx) {
		v, ok, err := r.cache.Get(ctx, k)
		if err != nil {
			r.opts.logger.Warn("cache lookup failed", logging.Fields{"repo": r.opts.name, "error": err})
		} else if ok {
			r.opts.metrics.CacheHit(r.opts.name)
			return v, true, nil
		}
	}
	r.opts.metrics.CacheMiss(r.opts.name)

	l, err := load(ctx, &r.group, r.opts.serializer.SerializeKey(r.opts.name, k), func(ctx context.Context) (lookup[V], error) {
		v, ok, err := r.origin.Get(ctx, k)
		if err != nil {
			return lookup[V]{}, err
		}
		if ok {
			if err := r.cache.Set(ctx, map[K]V{k: v}); err != nil {
				r.opts.logger.Warn("cache populate failed", logging.Fields{"repo": r.opts.name, "error": err})
			}
		}
		return lookup[V]{value: v, found: ok}, nil
	})
	return l.value, l.found, err
}

// Contains is true when either the cache or the origin has k. The origin is only asked on a cache miss.
func (r *ReadKeyValueCacheRepo[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	if ok, err := r.cache.Contains(ctx, k); err == nil && ok {
		return true, nil
	}
	return r.origin.Contains(ctx, k)
}

// Count is served by the origin.
func (r *ReadKeyValueCacheRepo[K, V]) Count(ctx context.Context) (int64, error) {
	return r.origin.Count(ctx)
}

// Values is served by the origin; pages are not cached.
func (r *ReadKeyValueCacheRepo[K, V]) Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	return r.origin.Values(ctx, p, reversed)
}

// Keys is served by the origin.
func (r *ReadKeyValueCacheRepo[K, V]) Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return r.origin.Keys(ctx, p, reversed)
}

// KeysByValue is served by the origin.
func (r *ReadKeyValueCacheRepo[K, V]) KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return r.origin.KeysByValue(ctx, v, p, reversed)
}

// GetAll is served by the origin.
func (r *ReadKeyValueCacheRepo[K, V]) GetAll(ctx context.Context) (map[K]V, error) {
	return r.origin.GetAll(ctx)
}

// Invalidate drops every cached entry.
func (r *ReadKeyValueCacheRepo[K, V]) Invalidate(ctx context.Context) error {
	return r.cache.Clear(ctx)
}

// KeyValueCacheRepo adds write-through to ReadKeyValueCacheRepo. Writes go to the origin;
// the origin change stream keeps the cache in sync, including for writes made by others.
type KeyValueCacheRepo[K comparable, V any] struct {
	*ReadKeyValueCacheRepo[K, V]
	origin repos.KeyValueRepo[K, V]
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ repos.KeyValueRepo[string, int] = (*KeyValueCacheRepo[string, int])(nil)

// NewKeyValue wraps origin and follows its change stream until ctx ends or Close is called.
func NewKeyValue[K comparable, V any](ctx context.Context, origin repos.KeyValueRepo[K, V], store cache.KVCache[K, V], opts ...Option) *KeyValueCacheRepo[K, V] {
	r := &KeyValueCacheRepo[K, V]{
		ReadKeyValueCacheRepo: NewReadKeyValue[K, V](origin, store, opts...),
		origin:                origin,
		done:                  make(chan struct{}),
	}

	ctx, r.cancel = context.WithCancel(ctx)
	sub := origin.Changes().Subscribe()
	go func() {
		defer close(r.done)
		events.Consume(ctx, sub, func(c repos.Change[K, V]) {
			mirrorChange(ctx, r.cache, c, r.opts)
		})
	}()
	return r
}

// Set writes toSet to the origin and, once accepted, to the cache.
func (r *KeyValueCacheRepo[K, V]) Set(ctx context.Context, toSet map[K]V) error {
	if err := r.origin.Set(ctx, toSet); err != nil {
		return err
	}
	return r.cache.Set(ctx, toSet)
}

// Unset removes keys from the origin and, once accepted, from the cache.
func (r *KeyValueCacheRepo[K, V]) Unset(ctx context.Context, keys []K) error {
	if err := r.origin.Unset(ctx, keys); err != nil {
		return err
	}
	return r.cache.Unset(ctx, keys)
}

// UnsetWithValues removes matching keys from the origin. The cache follows through the
// origin's removal events.
func (r *KeyValueCacheRepo[K, V]) UnsetWithValues(ctx context.Context, values []V) error {
	return r.origin.UnsetWithValues(ctx, values)
}

// Clear clears the origin and then the cache.
func (r *KeyValueCacheRepo[K, V]) Clear(ctx context.Context) error {
	if err := r.origin.Clear(ctx); err != nil {
		return err
	}
	return r.cache.Clear(ctx)
}

// Changes exposes the origin change stream.
func (r *KeyValueCacheRepo[K, V]) Changes() events.Source[repos.Change[K, V]] {
	return r.origin.Changes()
}

// Close stops following the origin change stream and waits for the follower to exit.
func (r *KeyValueCacheRepo[K, V]) Close() error {
	r.once.Do(r.cancel)
	<-r.done
	return nil
}

func mirrorChange[K comparable, V any](ctx context.Context, store cache.KVCache[K, V], c repos.Change[K, V], o options) {
	var err error
	switch c.Kind {
	case repos.ChangeSet:
		err = store.Set(ctx, map[K]V{c.Key: c.Value})
	case repos.ChangeRemoved:
		err = store.Unset(ctx, []K{c.Key})
	}
	if err != nil {
		o.logger.Warn("cache mirror failed", logging.Fields{"repo": o.name, "change": c.Kind.String(), "error": err})
	}
}
