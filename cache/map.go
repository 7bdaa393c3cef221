package cache

import (
	"context"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-mirror/pagination"
)

// Map is the default in-process KVCache. Entries keep insertion order, which is the order
// used by Keys and Values pagination. A reader-biased lock keeps concurrent reads cheap.
type Map[K comparable, V any] struct {
	mu    *xsync.RBMutex
	items map[K]V
	order []K
	equal func(a, b V) bool
}

var _ KVCache[string, int] = (*Map[string, int])(nil)

// NewMap creates an empty map store. Values are compared with reflect.DeepEqual.
func NewMap[K comparable, V any]() *Map[K, V] {
	return NewMapWithEqual[K, V](func(a, b V) bool { return reflect.DeepEqual(a, b) })
}

// NewMapWithEqual creates an empty map store using equal for KeysByValue lookups.
func NewMapWithEqual[K comparable, V any](equal func(a, b V) bool) *Map[K, V] {
	return &Map[K, V]{
		mu:    xsync.NewRBMutex(),
		items: make(map[K]V),
		equal: equal,
	}
}

// Get returns the value stored for k.
func (m *Map[K, V]) Get(_ context.Context, k K) (V, bool, error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	v, ok := m.items[k]
	return v, ok, nil
}

// Contains reports whether k is stored.
func (m *Map[K, V]) Contains(_ context.Context, k K) (bool, error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	_, ok := m.items[k]
	return ok, nil
}

// Count returns the number of entries.
func (m *Map[K, V]) Count(_ context.Context) (int64, error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	return int64(len(m.items)), nil
}

// Values returns a page of values in insertion order.
func (m *Map[K, V]) Values(_ context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	keys := pagination.Slice(m.order, p, reversed)
	return pagination.Map(keys, func(k K) V { return m.items[k] }), nil
}

// Keys returns a page of keys in insertion order.
func (m *Map[K, V]) Keys(_ context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	return pagination.Slice(m.order, p, reversed), nil
}

// KeysByValue returns a page of the keys whose value equals v.
func (m *Map[K, V]) KeysByValue(_ context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	matching := make([]K, 0)
	for _, k := range m.order {
		if m.equal(m.items[k], v) {
			matching = append(matching, k)
		}
	}
	return pagination.Slice(matching, p, reversed), nil
}

// Filter returns, in insertion order, the keys whose entry satisfies keep.
func (m *Map[K, V]) Filter(keep func(K, V) bool) []K {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	out := make([]K, 0)
	for _, k := range m.order {
		if keep(k, m.items[k]) {
			out = append(out, k)
		}
	}
	return out
}

// GetAll returns a copy of every entry.
func (m *Map[K, V]) GetAll(_ context.Context) (map[K]V, error) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	out := make(map[K]V, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out, nil
}

// Set stores every entry of toSet. New keys are appended to the iteration order.
func (m *Map[K, V]) Set(_ context.Context, toSet map[K]V) error {
	if len(toSet) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range toSet {
		if _, ok := m.items[k]; !ok {
			m.order = append(m.order, k)
		}
		m.items[k] = v
	}
	return nil
}

// Unset removes keys. Unknown keys are ignored.
func (m *Map[K, V]) Unset(_ context.Context, keys []K) error {
	m.Delete(keys...)
	return nil
}

// Delete removes keys and returns the ones that were present.
func (m *Map[K, V]) Delete(keys ...K) []K {
	if len(keys) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := m.items[k]; ok {
			delete(m.items, k)
			removed = append(removed, k)
		}
	}
	if len(removed) == 0 {
		return removed
	}

	kept := m.order[:0]
	for _, k := range m.order {
		if _, ok := m.items[k]; ok {
			kept = append(kept, k)
		}
	}
	var zero K
	for i := len(kept); i < len(m.order); i++ {
		m.order[i] = zero
	}
	m.order = kept
	return removed
}

// Clear removes every entry.
func (m *Map[K, V]) Clear(_ context.Context) error {
	m.Reset()
	return nil
}

// Reset removes every entry and returns the keys that were stored.
func (m *Map[K, V]) Reset() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.order
	m.items = make(map[K]V)
	m.order = nil
	return keys
}
