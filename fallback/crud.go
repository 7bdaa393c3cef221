package fallback

import (
	"context"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/reconcile"
	"github.com/goliatone/go-repository-mirror/repos"
)

// AutoRecacheCRUDRepo is AutoRecacheKeyValueRepo for CRUD origins, caching objects by id.
type AutoRecacheCRUDRepo[ID comparable, V any] struct {
	origin repos.ReadCRUDRepo[ID, V]
	cache  cache.KVCache[ID, V]
	idOf   repos.IDFunc[ID, V]
	opts   options
	pass   reconcile.Func
	loop   *loop
}

var (
	_ repos.ReadCRUDRepo[int64, string] = (*AutoRecacheCRUDRepo[int64, string])(nil)
	_ repos.Invalidator                 = (*AutoRecacheCRUDRepo[int64, string])(nil)
)

// NewCRUD wraps origin and starts the reconciliation loop. idOf is optional; when set,
// objects returned by GetByPagination are cached as well.
func NewCRUD[ID comparable, V any](ctx context.Context, origin repos.ReadCRUDRepo[ID, V], store cache.KVCache[ID, V], idOf repos.IDFunc[ID, V], opts ...Option) *AutoRecacheCRUDRepo[ID, V] {
	if store == nil {
		store = cache.NewMap[ID, V]()
	}
	r := &AutoRecacheCRUDRepo[ID, V]{
		origin: origin,
		cache:  store,
		idOf:   idOf,
		opts:   newOptions[V](opts),
	}
	r.pass = r.opts.observe(func(ctx context.Context) error {
		return reconcile.CRUD(ctx, r.cache, r.origin, r.opts.reconcile...)
	})
	r.loop = startLoop(ctx, r.opts.interval, r.pass)
	return r
}

// GetByID behaves like AutoRecacheKeyValueRepo.Get.
func (r *AutoRecacheCRUDRepo[ID, V]) GetByID(ctx context.Context, id ID) (V, bool, error) {
	res, err := attempt(ctx, r.opts,
		func(ctx context.Context) (lookup[V], error) {
			v, ok, err := r.origin.GetByID(ctx, id)
			return lookup[V]{value: v, found: ok}, err
		},
		func(ctx context.Context, l lookup[V]) error {
			if l.found {
				return r.cache.Set(ctx, map[ID]V{id: l.value})
			}
			return r.cache.Unset(ctx, []ID{id})
		},
		func(ctx context.Context) (lookup[V], error) {
			v, ok, err := r.cache.Get(ctx, id)
			return lookup[V]{value: v, found: ok}, err
		},
	)
	return res.value, res.found, err
}

// Contains asks the origin, then the cache.
func (r *AutoRecacheCRUDRepo[ID, V]) Contains(ctx context.Context, id ID) (bool, error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (bool, error) { return r.origin.Contains(ctx, id) },
		nil,
		func(ctx context.Context) (bool, error) { return r.cache.Contains(ctx, id) },
	)
}

// Count asks the origin, then the cache.
func (r *AutoRecacheCRUDRepo[ID, V]) Count(ctx context.Context) (int64, error) {
	return attempt(ctx, r.opts, r.origin.Count, nil, r.cache.Count)
}

// GetByPagination returns an origin page, caching its objects when idOf is set. When the
// origin fails the page is cut from the cache.
func (r *AutoRecacheCRUDRepo[ID, V]) GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (pagination.Result[V], error) { return r.origin.GetByPagination(ctx, p) },
		pageRefresher(r.cache, r.idOf),
		func(ctx context.Context) (pagination.Result[V], error) { return r.cache.Values(ctx, p, false) },
	)
}

// GetIDsByPagination returns an origin page of ids, or a cache page when the origin fails.
func (r *AutoRecacheCRUDRepo[ID, V]) GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[ID], error) {
	return attempt(ctx, r.opts,
		func(ctx context.Context) (pagination.Result[ID], error) { return r.origin.GetIDsByPagination(ctx, p) },
		nil,
		func(ctx context.Context) (pagination.Result[ID], error) { return r.cache.Keys(ctx, p, false) },
	)
}

// GetAll returns every origin object and replaces the cache with them.
func (r *AutoRecacheCRUDRepo[ID, V]) GetAll(ctx context.Context) (map[ID]V, error) {
	return attempt(ctx, r.opts, r.origin.GetAll,
		func(ctx context.Context, all map[ID]V) error {
			return reconcile.Apply(ctx, r.cache, all, r.opts.reconcile...)
		},
		r.cache.GetAll,
	)
}

// Invalidate runs one reconciliation pass and returns its error.
func (r *AutoRecacheCRUDRepo[ID, V]) Invalidate(ctx context.Context) error {
	return r.pass(ctx)
}

// Close stops the reconciliation loop and waits for it.
func (r *AutoRecacheCRUDRepo[ID, V]) Close() error {
	r.loop.stop()
	return nil
}
