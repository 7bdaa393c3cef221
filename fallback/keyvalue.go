package fallback

import (
	"context"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/reconcile"
	"github.com/goliatone/go-repository-mirror/repos"
)

type lookup[V any] struct {
	value V
	found bool
}

// AutoRecacheKeyValueRepo keeps a cache of a key-value origin fresh with a background
// reconciliation loop and serves reads from the cache whenever the origin fails.
type AutoRecacheKeyValueRepo[K comparable, V any] struct {
	origin repos.ReadKeyValueRepo[K, V]
	cache  cache.KVCache[K, V]
	idOf   repos.IDFunc[K, V]
	opts   options
	pass   reconcile.Func
	loop   *loop
}

var (
	_ repos.ReadKeyValueRepo[string, int] = (*AutoRecacheKeyValueRepo[string, int])(nil)
	_ repos.Invalidator                   = (*AutoRecacheKeyValueRepo[string, int])(nil)
)

// NewKeyValue wraps origin and starts the reconciliation loop, which runs until ctx ends
// or Close is called. The first pass starts immediately. A nil store defaults to an
// empty cache.Map owned by the repository. idOf is optional; when set, values returned
// by Values are cached under the key it derives from each value.
func NewKeyValue[K comparable, V any](ctx context.Context, origin repos.ReadKeyValueRepo[K, V], store cache.KVCache[K, V], idOf repos.IDFunc[K, V], opts ...Option) *AutoRecacheKeyValueRepo[K, V] {
	if store == nil {
		store = cache.NewMap[K, V]()
	}
	r := &AutoRecacheKeyValueRepo[K, V]{
		origin: origin,
		cache:  store,
		idOf:   idOf,
		opts:   newOptions[V](opts),
	}
	r.pass = r.opts.observe(func(ctx context.Context) error {
		return reconcile.KeyValue(ctx, r.cache, r.origin, r.opts.reconcile...)
	})
	r.loop = startLoop(ctx, r.opts.interval, r.pass)
	return r
}

// Get asks the origin first. A found value is cached and a confirmed absence drops the
// cached entry. When the origin fails the cached value is returned; with nothing cached
// the result is "not found" without an error.
func (r *AutoRecacheKeyValueRepo[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	res, err := attempt(ctx, r.opts,
		func(ctx context.Context) (lookup[V], error) {
			v, ok, err := r.origin.Get(ctx, k)
			return lookup[V]{value: v, found: ok}, err
		},
		func(ctx context.Context, l lookup[V]) error {
			if l.found {
				return r.cache.Set(ctx, map[K]V{k: l.value})
			}
			return r.cache.Unset(ctx, []K{k})
		},
		func(ctx context.Context) (lookup[V], error) {
			v, ok, err := r.cache.Get(ctx, k)
			return lookup[V]{value: v, found: ok}, err
		},
	)
	return res.value, res.found, err
}

// Contains asks the origin, then the cache.
func (r *AutoRecacheKeyValueRepo[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (bool, error) { return r.origin.Contains(ctx, k) },
		nil,
		func(ctx context.Context) (bool, error) { return r.cache.Contains(ctx, k) },
	)
}

// Count asks the origin, then the cache.
func (r *AutoRecacheKeyValueRepo[K, V]) Count(ctx context.Context) (int64, error) {
	return attempt(ctx, r.opts, r.origin.Count, nil, r.cache.Count)
}

// Values returns an origin page, caching its values when idOf is set. When the origin
// fails the page is cut from the cache.
func (r *AutoRecacheKeyValueRepo[K, V]) Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (pagination.Result[V], error) { return r.origin.Values(ctx, p, reversed) },
		pageRefresher(r.cache, r.idOf),
		func(ctx context.Context) (pagination.Result[V], error) { return r.cache.Values(ctx, p, reversed) },
	)
}

// Keys returns an origin page of keys, or a cache page when the origin fails. Key pages
// are not cached: storing them would take one origin Get per key, and the next pass
// picks them up.
func (r *AutoRecacheKeyValueRepo[K, V]) Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (pagination.Result[K], error) { return r.origin.Keys(ctx, p, reversed) },
		nil,
		func(ctx context.Context) (pagination.Result[K], error) { return r.cache.Keys(ctx, p, reversed) },
	)
}

// KeysByValue asks the origin, then the cache. Nothing is cached since v comes from the
// caller, not the origin.
func (r *AutoRecacheKeyValueRepo[K, V]) KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (pagination.Result[K], error) { return r.origin.KeysByValue(ctx, v, p, reversed) },
		nil,
		func(ctx context.Context) (pagination.Result[K], error) { return r.cache.KeysByValue(ctx, v, p, reversed) },
	)
}

// GetAll returns the full origin contents and replaces the cache with them. When the
// origin fails the cache contents are returned.
func (r *AutoRecacheKeyValueRepo[K, V]) GetAll(ctx context.Context) (map[K]V, error) {
	return attempt(ctx, r.opts, r.origin.GetAll,
		func(ctx context.Context, all map[K]V) error {
			return reconcile.Apply(ctx, r.cache, all, r.opts.reconcile...)
		},
		r.cache.GetAll,
	)
}

// Invalidate runs one reconciliation pass outside the loop's cadence and returns its error.
func (r *AutoRecacheKeyValueRepo[K, V]) Invalidate(ctx context.Context) error {
	return r.pass(ctx)
}

// Close stops the reconciliation loop and waits for a running pass to return.
func (r *AutoRecacheKeyValueRepo[K, V]) Close() error {
	r.loop.stop()
	return nil
}

// pageRefresher caches a page of values under the keys idOf derives. It returns nil,
// meaning no refresh, when idOf is nil.
func pageRefresher[K comparable, V any](c cache.KVCache[K, V], idOf repos.IDFunc[K, V]) func(ctx context.Context, page pagination.Result[V]) error {
	if idOf == nil {
		return nil
	}
	return func(ctx context.Context, page pagination.Result[V]) error {
		if len(page.Results) == 0 {
			return nil
		}
		toSet := make(map[K]V, len(page.Results))
		for _, v := range page.Results {
			toSet[idOf(v)] = v
		}
		return c.Set(ctx, toSet)
	}
}
