// Package memory provides in-process repositories backed by cache.Map. They publish an
// ordered change stream and serve as default origins in examples and tests.
package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

// KeyValueRepo is a mutable in-memory key-value repository.
type KeyValueRepo[K comparable, V any] struct {
	// writes serializes mutation and publication so events follow state order
	writes  sync.Mutex
	store   *cache.Map[K, V]
	equal   func(a, b V) bool
	changes *events.Broker[repos.Change[K, V]]
}

var _ repos.KeyValueRepo[string, int] = (*KeyValueRepo[string, int])(nil)

// NewKeyValueRepo creates an empty repository comparing values with reflect.DeepEqual.
func NewKeyValueRepo[K comparable, V any]() *KeyValueRepo[K, V] {
	return NewKeyValueRepoWithEqual[K, V](func(a, b V) bool { return reflect.DeepEqual(a, b) })
}

// NewKeyValueRepoWithEqual creates an empty repository using equal for value comparisons.
func NewKeyValueRepoWithEqual[K comparable, V any](equal func(a, b V) bool) *KeyValueRepo[K, V] {
	return &KeyValueRepo[K, V]{
		store:   cache.NewMapWithEqual[K, V](equal),
		equal:   equal,
		changes: events.NewBroker[repos.Change[K, V]](),
	}
}

func (r *KeyValueRepo[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	return r.store.Get(ctx, k)
}

func (r *KeyValueRepo[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	return r.store.Contains(ctx, k)
}

func (r *KeyValueRepo[K, V]) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx)
}

func (r *KeyValueRepo[K, V]) Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	return r.store.Values(ctx, p, reversed)
}

func (r *KeyValueRepo[K, V]) Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return r.store.Keys(ctx, p, reversed)
}

func (r *KeyValueRepo[K, V]) KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	return r.store.KeysByValue(ctx, v, p, reversed)
}

func (r *KeyValueRepo[K, V]) GetAll(ctx context.Context) (map[K]V, error) {
	return r.store.GetAll(ctx)
}

// Set stores every entry and publishes one ChangeSet per key.
func (r *KeyValueRepo[K, V]) Set(ctx context.Context, toSet map[K]V) error {
	r.writes.Lock()
	defer r.writes.Unlock()
	if err := r.store.Set(ctx, toSet); err != nil {
		return err
	}
	for k, v := range toSet {
		r.changes.Publish(repos.SetChange(k, v))
	}
	return nil
}

// Unset removes keys and publishes a ChangeRemoved for each key that was present.
func (r *KeyValueRepo[K, V]) Unset(_ context.Context, keys []K) error {
	r.writes.Lock()
	defer r.writes.Unlock()
	r.publishRemoved(r.store.Delete(keys...))
	return nil
}

// UnsetWithValues removes every key whose value equals one of values.
func (r *KeyValueRepo[K, V]) UnsetWithValues(_ context.Context, values []V) error {
	r.writes.Lock()
	defer r.writes.Unlock()

	matching := r.store.Filter(func(_ K, v V) bool {
		for _, candidate := range values {
			if r.equal(v, candidate) {
				return true
			}
		}
		return false
	})
	r.publishRemoved(r.store.Delete(matching...))
	return nil
}

// Clear removes every entry.
func (r *KeyValueRepo[K, V]) Clear(_ context.Context) error {
	r.writes.Lock()
	defer r.writes.Unlock()
	r.publishRemoved(r.store.Reset())
	return nil
}

// Changes returns the ordered change stream.
func (r *KeyValueRepo[K, V]) Changes() events.Source[repos.Change[K, V]] {
	return r.changes
}

// Close ends every change subscription.
func (r *KeyValueRepo[K, V]) Close() {
	r.changes.Close()
}

func (r *KeyValueRepo[K, V]) publishRemoved(keys []K) {
	for _, k := range keys {
		r.changes.Publish(repos.RemovedChange[K, V](k))
	}
}
