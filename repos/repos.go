// Package repos declares the capability interfaces shared by origins, cache stores and
// every cache wrapper in this module.
//
// The interfaces are split by capability (read, write, CRUD, one-to-many) so each wrapper
// can depend on the narrowest contract it needs. Every wrapper re-exposes the interface it
// wraps, so wrappers compose: a full mirror can itself be wrapped by a read-through repo.
//
// Lookups report absence with a false flag rather than an error; errors are reserved for
// failures of the underlying store.
package repos

import (
	"context"

	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/pagination"
)

// ChangeKind tells whether a change stored or removed a value.
type ChangeKind int

const (
	// ChangeSet is emitted when a key is inserted or its value replaced.
	ChangeSet ChangeKind = iota
	// ChangeRemoved is emitted when a key is removed.
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "set"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a single entry in a repository change stream. Value is the zero value for removals.
type Change[K comparable, V any] struct {
	Kind  ChangeKind
	Key   K
	Value V
}

// SetChange builds a ChangeSet event.
func SetChange[K comparable, V any](k K, v V) Change[K, V] {
	return Change[K, V]{Kind: ChangeSet, Key: k, Value: v}
}

// RemovedChange builds a ChangeRemoved event.
func RemovedChange[K comparable, V any](k K) Change[K, V] {
	return Change[K, V]{Kind: ChangeRemoved, Key: k}
}

// ReadKeyValueRepo is read access to keyed data.
type ReadKeyValueRepo[K comparable, V any] interface {
	Get(ctx context.Context, k K) (V, bool, error)
	Contains(ctx context.Context, k K) (bool, error)
	Count(ctx context.Context) (int64, error)
	Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error)
	Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error)
	KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error)
	GetAll(ctx context.Context) (map[K]V, error)
}

// WriteKeyValueRepo is write access to keyed data plus its ordered change stream.
type WriteKeyValueRepo[K comparable, V any] interface {
	Set(ctx context.Context, toSet map[K]V) error
	Unset(ctx context.Context, keys []K) error
	UnsetWithValues(ctx context.Context, values []V) error
	Clear(ctx context.Context) error
	Changes() events.Source[Change[K, V]]
}

// KeyValueRepo is a mutable key-value repository.
type KeyValueRepo[K comparable, V any] interface {
	ReadKeyValueRepo[K, V]
	WriteKeyValueRepo[K, V]
}

// ReadCRUDRepo is read access to objects addressed by id.
type ReadCRUDRepo[ID comparable, V any] interface {
	GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error)
	GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[ID], error)
	Count(ctx context.Context) (int64, error)
	Contains(ctx context.Context, id ID) (bool, error)
	GetAll(ctx context.Context) (map[ID]V, error)
	GetByID(ctx context.Context, id ID) (V, bool, error)
}

// WriteCRUDRepo creates, updates and deletes objects. Created and updated objects are
// published as ChangeSet events, deletions as ChangeRemoved.
type WriteCRUDRepo[ID comparable, V any, In any] interface {
	Create(ctx context.Context, values []In) ([]V, error)
	Update(ctx context.Context, id ID, value In) (V, bool, error)
	DeleteByID(ctx context.Context, ids []ID) error
	Changes() events.Source[Change[ID, V]]
}

// CRUDRepo is a mutable CRUD repository.
type CRUDRepo[ID comparable, V any, In any] interface {
	ReadCRUDRepo[ID, V]
	WriteCRUDRepo[ID, V, In]
}

// ReadKeyValuesRepo is read access to a one-to-many store where each key holds a list of values.
type ReadKeyValuesRepo[K comparable, V any] interface {
	Get(ctx context.Context, k K, p pagination.Pagination, reversed bool) (pagination.Result[V], error)
	Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error)
	Contains(ctx context.Context, k K) (bool, error)
	ContainsValue(ctx context.Context, k K, v V) (bool, error)
	Count(ctx context.Context) (int64, error)
	CountValues(ctx context.Context, k K) (int64, error)
	GetAll(ctx context.Context) (map[K][]V, error)
}

// Invalidator is implemented by every cache wrapper. Invalidate drops or rebuilds the
// wrapper's derived data; wrappers that reload do so before discarding anything.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// IDFunc extracts the key of a value.
type IDFunc[K comparable, V any] func(V) K
