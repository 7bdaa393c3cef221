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

// ReadCRUDCacheRepo is a read-through cache in front of a CRUD repository.
// GetByID is served from the cache when possible; every other read goes to the origin.
type ReadCRUDCacheRepo[ID comparable, V any] struct {
	origin repos.ReadCRUDRepo[ID, V]
	cache  cache.KVCache[ID, V]
	group  singleflight.Group
	opts   options
}

var (
	_ repos.ReadCRUDRepo[int64, string] = (*ReadCRUDCacheRepo[int64, string])(nil)
	_ repos.Invalidator                 = (*ReadCRUDCacheRepo[int64, string])(nil)
)

// NewReadCRUD wraps origin. A nil store defaults to an empty cache.Map.
func NewReadCRUD[ID comparable, V any](origin repos.ReadCRUDRepo[ID, V], store cache.KVCache[ID, V], opts ...Option) *ReadCRUDCacheRepo[ID, V] {
	if store == nil {
		store = cache.NewMap[ID, V]()
	}
	return &ReadCRUDCacheRepo[ID, V]{
		origin: origin,
		cache:  store,
		opts:   newOptions[V](opts),
	}
}

// GetByID returns the cached object or loads it from the origin and caches it.
func (r *ReadCRUDCacheRepo[ID, V]) GetByID(ctx context.Context, id ID) (V, bool, error) {
	if !refreshRequested(ctx) {
		v, ok, err := r.cache.Get(ctx, id)
		if err != nil {
			r.opts.logger.Warn("cache lookup failed", logging.Fields{"repo": r.opts.name, "error": err})
		} else if ok {
			r.opts.metrics.CacheHit(r.opts.name)
			return v, true, nil
		}
	}
	r.opts.metrics.CacheMiss(r.opts.name)

	l, err := load(ctx, &r.group, r.opts.serializer.SerializeKey(r.opts.name, id), func(ctx context.Context) (lookup[V], error) {
		v, ok, err := r.origin.GetByID(ctx, id)
		if err != nil {
			return lookup[V]{}, err
		}
		if ok {
			if err := r.cache.Set(ctx, map[ID]V{id: v}); err != nil {
				r.opts.logger.Warn("cache populate failed", logging.Fields{"repo": r.opts.name, "error": err})
			}
		}
		return lookup[V]{value: v, found: ok}, nil
	})
	return l.value, l.found, err
}

// Contains is true when either the cache or the origin has id.
func (r *ReadCRUDCacheRepo[ID, V]) Contains(ctx context.Context, id ID) (bool, error) {
	if ok, err := r.cache.Contains(ctx, id); err == nil && ok {
		return true, nil
	}
	return r.origin.Contains(ctx, id)
}

// GetByPagination is served by the origin; pages are not cached.
func (r *ReadCRUDCacheRepo[ID, V]) GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error) {
	return r.origin.GetByPagination(ctx, p)
}

// GetIDsByPagination is served by the origin.
func (r *ReadCRUDCacheRepo[ID, V]) GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[ID], error) {
	return r.origin.GetIDsByPagination(ctx, p)
}

// Count is served by the origin.
func (r *ReadCRUDCacheRepo[ID, V]) Count(ctx context.Context) (int64, error) {
	return r.origin.Count(ctx)
}

// GetAll is served by the origin.
func (r *ReadCRUDCacheRepo[ID, V]) GetAll(ctx context.Context) (map[ID]V, error) {
	return r.origin.GetAll(ctx)
}

// Invalidate drops every cached object.
func (r *ReadCRUDCacheRepo[ID, V]) Invalidate(ctx context.Context) error {
	return r.cache.Clear(ctx)
}

// CRUDCacheRepo adds write-through to ReadCRUDCacheRepo. Successful writes are mirrored
// into the cache right away, and the origin change stream covers writes made by others.
type CRUDCacheRepo[ID comparable, V any, In any] struct {
	*ReadCRUDCacheRepo[ID, V]
	origin repos.CRUDRepo[ID, V, In]
	idOf   repos.IDFunc[ID, V]
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ repos.CRUDRepo[int64, string, string] = (*CRUDCacheRepo[int64, string, string])(nil)

// NewCRUD wraps origin and follows its change stream until ctx ends or Close is called.
// idOf extracts the id of created objects.
func NewCRUD[ID comparable, V any, In any](ctx context.Context, origin repos.CRUDRepo[ID, V, In], store cache.KVCache[ID, V], idOf repos.IDFunc[ID, V], opts ...Option) *CRUDCacheRepo[ID, V, In] {
	r := &CRUDCacheRepo[ID, V, In]{
		ReadCRUDCacheRepo: NewReadCRUD[ID, V](origin, store, opts...),
		origin:            origin,
		idOf:              idOf,
		done:              make(chan struct{}),
	}

	ctx, r.cancel = context.WithCancel(ctx)
	sub := origin.Changes().Subscribe()
	go func() {
		defer close(r.done)
		events.Consume(ctx, sub, func(c repos.Change[ID, V]) {
			mirrorChange(ctx, r.cache, c, r.opts)
		})
	}()
	return r
}

// Create creates values in the origin and caches the created objects.
func (r *CRUDCacheRepo[ID, V, In]) Create(ctx context.Context, values []In) ([]V, error) {
	created, err := r.origin.Create(ctx, values)
	if err != nil {
		return created, err
	}
	if len(created) > 0 {
		toSet := make(map[ID]V, len(created))
		for _, v := range created {
			toSet[r.idOf(v)] = v
		}
		if err := r.cache.Set(ctx, toSet); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Update updates id in the origin and caches the result.
func (r *CRUDCacheRepo[ID, V, In]) Update(ctx context.Context, id ID, value In) (V, bool, error) {
	updated, ok, err := r.origin.Update(ctx, id, value)
	if err != nil || !ok {
		return updated, ok, err
	}
	if err := r.cache.Set(ctx, map[ID]V{id: updated}); err != nil {
		return updated, true, err
	}
	return updated, true, nil
}

// DeleteByID deletes ids from the origin and drops them from the cache.
func (r *CRUDCacheRepo[ID, V, In]) DeleteByID(ctx context.Context, ids []ID) error {
	if err := r.origin.DeleteByID(ctx, ids); err != nil {
		return err
	}
	return r.cache.Unset(ctx, ids)
}

// Changes exposes the origin change stream.
func (r *CRUDCacheRepo[ID, V, In]) Changes() events.Source[repos.Change[ID, V]] {
	return r.origin.Changes()
}

// Close stops following the origin change stream and waits for the follower to exit.
func (r *CRUDCacheRepo[ID, V, In]) Close() error {
	r.once.Do(r.cancel)
	<-r.done
	return nil
}
