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

type lookup[V any] struct {
	value V
	found bool
}

// ReadKeyValueRepo serves every read from its store under the shared hold of its lock.
// The origin is only read by Invalidate.
type ReadKeyValueRepo[K comparable, V any] struct {
	origin repos.ReadKeyValueRepo[K, V]
	cache  cache.KVCache[K, V]
	locker *locker.RWLocker
	opts   options
}

var (
	_ repos.ReadKeyValueRepo[string, int] = (*ReadKeyValueRepo[string, int])(nil)
	_ repos.Invalidator                   = (*ReadKeyValueRepo[string, int])(nil)
)

// NewReadKeyValue mirrors origin into store. Nothing is loaded until Invalidate is called.
// A nil store defaults to an empty cache.Map.
func NewReadKeyValue[K comparable, V any](origin repos.ReadKeyValueRepo[K, V], store cache.KVCache[K, V], opts ...Option) *ReadKeyValueRepo[K, V] {
	o := newOptions[V](opts)
	o.skipStart = true
	return newReadKeyValue(origin, store, locker.New(), o)
}

func newReadKeyValue[K comparable, V any](origin repos.ReadKeyValueRepo[K, V], store cache.KVCache[K, V], l *locker.RWLocker, o options) *ReadKeyValueRepo[K, V] {
	if store == nil {
		store = cache.NewMap[K, V]()
	}
	return &ReadKeyValueRepo[K, V]{origin: origin, cache: store, locker: l, opts: o}
}

// Get reads the mirrored value for k.
func (r *ReadKeyValueRepo[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	res, err := locker.Read(ctx, r.locker, func() (lookup[V], error) {
		v, ok, err := r.cache.Get(ctx, k)
		return lookup[V]{value: v, found: ok}, err
	})
	return res.value, res.found, err
}

// Contains reports whether k is mirrored.
func (r *ReadKeyValueRepo[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	return locker.Read(ctx, r.locker, func() (bool, error) { return r.cache.Contains(ctx, k) })
}

// Count returns the number of mirrored entries.
func (r *ReadKeyValueRepo[K, V]) Count(ctx context.Context) (int64, error) {
	return locker.Read(ctx, r.locker, func() (int64, error) { return r.cache.Count(ctx) })
}

// Values returns a page of mirrored values.
func (r *ReadKeyValueRepo[K, V]) Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	return locker.Read(ctx, r.locker, func() (pagination.Result[V], error) { return r.cache.Values(ctx, p, reversed) })
}

// Keys returns a page of mirrored keys.
func (r *ReadKeyValueRepo[K, V]) Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return locker.Read(ctx, r.locker, func() (pagination.Result[K], error) { return r.cache.Keys(ctx, p, reversed) })
}

// KeysByValue returns a page of mirrored keys whose value equals v.
func (r *ReadKeyValueRepo[K, V]) KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return locker.Read(ctx, r.locker, func() (pagination.Result[K], error) { return r.cache.KeysByValue(ctx, v, p, reversed) })
}

// GetAll returns a copy of the mirror.
func (r *ReadKeyValueRepo[K, V]) GetAll(ctx context.Context) (map[K]V, error) {
	return locker.Read(ctx, r.locker, func() (map[K]V, error) { return r.cache.GetAll(ctx) })
}

// Invalidate reconciles the store with the origin under the exclusive hold.
func (r *ReadKeyValueRepo[K, V]) Invalidate(ctx context.Context) error {
	return r.opts.observe(ctx, "invalidate", func(ctx context.Context) error {
		return reconcile.KeyValue(ctx, r.cache, r.origin, r.opts.locked(r.locker)...)
	})
}

// WriteKeyValueRepo forwards writes to the origin and mirrors the origin change stream into
// its store under the exclusive hold of its lock.
type WriteKeyValueRepo[K comparable, V any] struct {
	origin repos.WriteKeyValueRepo[K, V]
	cache  cache.KVCache[K, V]
	locker *locker.RWLocker
	opts   options
	bg     *background
}

var _ repos.WriteKeyValueRepo[string, int] = (*WriteKeyValueRepo[string, int])(nil)

// NewWriteKeyValue follows origin until ctx ends or Close is called.
func NewWriteKeyValue[K comparable, V any](ctx context.Context, origin repos.WriteKeyValueRepo[K, V], store cache.KVCache[K, V], opts ...Option) *WriteKeyValueRepo[K, V] {
	o := newOptions[V](opts)
	o.skipStart = true
	if store == nil {
		store = cache.NewMap[K, V]()
	}
	w := newWriteKeyValue(origin, store, locker.New(), o, newBackground(ctx))
	close(w.bg.ready)
	return w
}

func newWriteKeyValue[K comparable, V any](origin repos.WriteKeyValueRepo[K, V], store cache.KVCache[K, V], l *locker.RWLocker, o options, bg *background) *WriteKeyValueRepo[K, V] {
	w := &WriteKeyValueRepo[K, V]{origin: origin, cache: store, locker: l, opts: o, bg: bg}
	sub := origin.Changes().Subscribe()
	bg.goFunc(func(ctx context.Context) {
		events.Consume(ctx, sub, func(c repos.Change[K, V]) {
			mirrorChange(ctx, w.locker, w.cache, c, w.opts)
		})
	})
	return w
}

// Set writes to the origin. The mirror follows through the change stream.
func (w *WriteKeyValueRepo[K, V]) Set(ctx context.Context, toSet map[K]V) error {
	return w.origin.Set(ctx, toSet)
}

// Unset deletes keys from the origin.
func (w *WriteKeyValueRepo[K, V]) Unset(ctx context.Context, keys []K) error {
	return w.origin.Unset(ctx, keys)
}

// UnsetWithValues deletes every origin entry holding one of values.
func (w *WriteKeyValueRepo[K, V]) UnsetWithValues(ctx context.Context, values []V) error {
	return w.origin.UnsetWithValues(ctx, values)
}

// Clear empties the origin.
func (w *WriteKeyValueRepo[K, V]) Clear(ctx context.Context) error {
	return w.origin.Clear(ctx)
}

// Changes exposes the origin's change stream.
func (w *WriteKeyValueRepo[K, V]) Changes() events.Source[repos.Change[K, V]] {
	return w.origin.Changes()
}

// Invalidate clears the store. Only later changes are mirrored back into it.
func (w *WriteKeyValueRepo[K, V]) Invalidate(ctx context.Context) error {
	return w.locker.WithWrite(ctx, func() error { return w.cache.Clear(ctx) })
}

// Close stops following the change stream.
func (w *WriteKeyValueRepo[K, V]) Close() error {
	w.bg.stop()
	return nil
}

// KeyValueRepo is a full mirror of a mutable key-value origin. Reads never reach the
// origin. Writes go to the origin and then to the store, both under the exclusive hold,
// and changes made through other handles arrive through the origin change stream.
//
// Until the initial load finishes the lock stays write-held, so early reads wait for it.
type KeyValueRepo[K comparable, V any] struct {
	*ReadKeyValueRepo[K, V]
	writer *WriteKeyValueRepo[K, V]
	origin repos.KeyValueRepo[K, V]
}

var (
	_ repos.KeyValueRepo[string, int] = (*KeyValueRepo[string, int])(nil)
	_ repos.Invalidator               = (*KeyValueRepo[string, int])(nil)
)

// NewKeyValue mirrors origin into store and starts the initial load, unless
// WithSkipStartInvalidate is given. Background work runs until ctx ends or Close is called.
func NewKeyValue[K comparable, V any](ctx context.Context, origin repos.KeyValueRepo[K, V], store cache.KVCache[K, V], opts ...Option) *KeyValueRepo[K, V] {
	o := newOptions[V](opts)
	l := newLocker(o)
	bg := newBackground(ctx)

	reader := newReadKeyValue[K, V](origin, store, l, o)
	r := &KeyValueRepo[K, V]{
		ReadKeyValueRepo: reader,
		writer:           newWriteKeyValue[K, V](origin, reader.cache, l, o, bg),
		origin:           origin,
	}
	bg.initialLoad(l, o, func(ctx context.Context) error {
		return reconcile.KeyValue(ctx, reader.cache, origin, o.reconcile...)
	})
	return r
}

// Set writes toSet to the origin and mirrors the keys the origin now holds.
func (r *KeyValueRepo[K, V]) Set(ctx context.Context, toSet map[K]V) error {
	return r.locker.WithWrite(ctx, func() error {
		if err := r.origin.Set(ctx, toSet); err != nil {
			return err
		}
		accepted := make(map[K]V, len(toSet))
		for k, v := range toSet {
			ok, err := r.origin.Contains(ctx, k)
			if err != nil {
				return err
			}
			if ok {
				accepted[k] = v
			}
		}
		return r.cache.Set(ctx, accepted)
	})
}

// Unset removes keys from the origin and drops those the origin no longer holds.
func (r *KeyValueRepo[K, V]) Unset(ctx context.Context, keys []K) error {
	return r.locker.WithWrite(ctx, func() error {
		if err := r.origin.Unset(ctx, keys); err != nil {
			return err
		}
		return r.dropRemoved(ctx, keys)
	})
}

// UnsetWithValues removes every key holding one of values from the origin, then drops the
// matching keys the origin no longer holds.
func (r *KeyValueRepo[K, V]) UnsetWithValues(ctx context.Context, values []V) error {
	return r.locker.WithWrite(ctx, func() error {
		if err := r.origin.UnsetWithValues(ctx, values); err != nil {
			return err
		}
		var candidates []K
		for _, v := range values {
			keys, err := repos.Drain(ctx, pagination.DefaultSize, func(ctx context.Context, p pagination.Pagination) (pagination.Result[K], error) {
				return r.cache.KeysByValue(ctx, v, p, false)
			})
			if err != nil {
				return err
			}
			candidates = append(candidates, keys...)
		}
		return r.dropRemoved(ctx, candidates)
	})
}

func (r *KeyValueRepo[K, V]) dropRemoved(ctx context.Context, keys []K) error {
	var removed []K
	for _, k := range keys {
		ok, err := r.origin.Contains(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			removed = append(removed, k)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	return r.cache.Unset(ctx, removed)
}

// Clear clears the origin and then the store.
func (r *KeyValueRepo[K, V]) Clear(ctx context.Context) error {
	return r.locker.WithWrite(ctx, func() error {
		if err := r.origin.Clear(ctx); err != nil {
			return err
		}
		return r.cache.Clear(ctx)
	})
}

// Changes exposes the origin's change stream.
func (r *KeyValueRepo[K, V]) Changes() events.Source[repos.Change[K, V]] {
	return r.origin.Changes()
}

// Ready is closed once the initial load finished, successfully or not.
func (r *KeyValueRepo[K, V]) Ready() <-chan struct{} {
	return r.writer.bg.ready
}

// Close stops the initial load and the change stream follower and waits for both.
func (r *KeyValueRepo[K, V]) Close() error {
	return r.writer.Close()
}
