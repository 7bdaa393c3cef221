package full

import (
	"context"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/locker"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/reconcile"
	"github.com/goliatone/go-repository-mirror/repos"
)

// ReadCRUDRepo serves every CRUD read from its store under the shared hold of its lock.
type ReadCRUDRepo[ID comparable, V any] struct {
	origin repos.ReadCRUDRepo[ID, V]
	cache  cache.KVCache[ID, V]
	locker *locker.RWLocker
	opts   options
}

var (
	_ repos.ReadCRUDRepo[int64, string] = (*ReadCRUDRepo[int64, string])(nil)
	_ repos.Invalidator                 = (*ReadCRUDRepo[int64, string])(nil)
)

// NewReadCRUD mirrors origin into store. Nothing is loaded until Invalidate is called.
func NewReadCRUD[ID comparable, V any](origin repos.ReadCRUDRepo[ID, V], store cache.KVCache[ID, V], opts ...Option) *ReadCRUDRepo[ID, V] {
	o := newOptions[V](opts)
	o.skipStart = true
	return newReadCRUD(origin, store, locker.New(), o)
}

func newReadCRUD[ID comparable, V any](origin repos.ReadCRUDRepo[ID, V], store cache.KVCache[ID, V], l *locker.RWLocker, o options) *ReadCRUDRepo[ID, V] {
	if store == nil {
		store = cache.NewMap[ID, V]()
	}
	return &ReadCRUDRepo[ID, V]{origin: origin, cache: store, locker: l, opts: o}
}

// GetByID reads the mirrored object for id.
func (r *ReadCRUDRepo[ID, V]) GetByID(ctx context.Context, id ID) (V, bool, error) {
	res, err := locker.Read(ctx, r.locker, func() (lookup[V], error) {
		v, ok, err := r.cache.Get(ctx, id)
		return lookup[V]{value: v, found: ok}, err
	})
	return res.value, res.found, err
}

// GetByPagination returns a page of mirrored objects.
func (r *ReadCRUDRepo[ID, V]) GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error) {
	return locker.Read(ctx, r.locker, func() (pagination.Result[V], error) { return r.cache.Values(ctx, p, false) })
}

// GetIDsByPagination returns a page of mirrored ids.
func (r *ReadCRUDRepo[ID, V]) GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[ID], error) {
	return locker.Read(ctx, r.locker, func() (pagination.Result[ID], error) { return r.cache.Keys(ctx, p, false) })
}

// Count returns the number of mirrored objects.
func (r *ReadCRUDRepo[ID, V]) Count(ctx context.Context) (int64, error) {
	return locker.Read(ctx, r.locker, func() (int64, error) { return r.cache.Count(ctx) })
}

// Contains reports whether id is mirrored.
func (r *ReadCRUDRepo[ID, V]) Contains(ctx context.Context, id ID) (bool, error) {
	return locker.Read(ctx, r.locker, func() (bool, error) { return r.cache.Contains(ctx, id) })
}

// GetAll returns a copy of the mirror.
func (r *ReadCRUDRepo[ID, V]) GetAll(ctx context.Context) (map[ID]V, error) {
	return locker.Read(ctx, r.locker, func() (map[ID]V, error) { return r.cache.GetAll(ctx) })
}

// Invalidate reconciles the store with the origin under the exclusive hold.
func (r *ReadCRUDRepo[ID, V]) Invalidate(ctx context.Context) error {
	return r.opts.observe(ctx, "invalidate", func(ctx context.Context) error {
		return reconcile.CRUD(ctx, r.cache, r.origin, r.opts.locked(r.locker)...)
	})
}

// CRUDRepo is a full mirror of a CRUD origin. Reads never reach the origin; writes reach
// the origin first and are mirrored under the exclusive hold once it accepted them.
type CRUDRepo[ID comparable, V any, In any] struct {
	*ReadCRUDRepo[ID, V]
	origin repos.CRUDRepo[ID, V, In]
	idOf   repos.IDFunc[ID, V]
	bg     *background
}

var (
	_ repos.CRUDRepo[int64, string, string] = (*CRUDRepo[int64, string, string])(nil)
	_ repos.Invalidator                     = (*CRUDRepo[int64, string, string])(nil)
)

// NewCRUD mirrors origin into store and starts the initial load, unless
// WithSkipStartInvalidate is given. idOf extracts the id of created objects.
func NewCRUD[ID comparable, V any, In any](ctx context.Context, origin repos.CRUDRepo[ID, V, In], store cache.KVCache[ID, V], idOf repos.IDFunc[ID, V], opts ...Option) *CRUDRepo[ID, V, In] {
	o := newOptions[V](opts)
	l := newLocker(o)
	bg := newBackground(ctx)

	r := &CRUDRepo[ID, V, In]{
		ReadCRUDRepo: newReadCRUD[ID, V](origin, store, l, o),
		origin:       origin,
		idOf:         idOf,
		bg:           bg,
	}

	sub := origin.Changes().Subscribe()
	bg.goFunc(func(ctx context.Context) {
		events.Consume(ctx, sub, func(c repos.Change[ID, V]) {
			mirrorChange(ctx, l, r.cache, c, o)
		})
	})
	bg.initialLoad(l, o, func(ctx context.Context) error {
		return reconcile.CRUD(ctx, r.cache, origin, o.reconcile...)
	})
	return r
}

// Create creates values in the origin and stores the created objects.
func (r *CRUDRepo[ID, V, In]) Create(ctx context.Context, values []In) ([]V, error) {
	return locker.Write(ctx, r.locker, func() ([]V, error) {
		created, err := r.origin.Create(ctx, values)
		if err != nil || len(created) == 0 {
			return created, err
		}
		toSet := make(map[ID]V, len(created))
		for _, v := range created {
			toSet[r.idOf(v)] = v
		}
		return created, r.cache.Set(ctx, toSet)
	})
}

// Update updates id in the origin and stores the result when the origin knew id.
func (r *CRUDRepo[ID, V, In]) Update(ctx context.Context, id ID, value In) (V, bool, error) {
	res, err := locker.Write(ctx, r.locker, func() (lookup[V], error) {
		updated, ok, err := r.origin.Update(ctx, id, value)
		if err != nil || !ok {
			return lookup[V]{value: updated, found: ok}, err
		}
		return lookup[V]{value: updated, found: true}, r.cache.Set(ctx, map[ID]V{id: updated})
	})
	return res.value, res.found, err
}

// DeleteByID deletes ids from the origin and the store.
func (r *CRUDRepo[ID, V, In]) DeleteByID(ctx context.Context, ids []ID) error {
	return r.locker.WithWrite(ctx, func() error {
		if err := r.origin.DeleteByID(ctx, ids); err != nil {
			return err
		}
		return r.cache.Unset(ctx, ids)
	})
}

// Changes exposes the origin's change stream.
func (r *CRUDRepo[ID, V, In]) Changes() events.Source[repos.Change[ID, V]] {
	return r.origin.Changes()
}

// Ready is closed once the initial load finished, successfully or not.
func (r *CRUDRepo[ID, V, In]) Ready() <-chan struct{} {
	return r.bg.ready
}

// Close stops background work and waits for it.
func (r *CRUDRepo[ID, V, In]) Close() error {
	r.bg.stop()
	return nil
}
