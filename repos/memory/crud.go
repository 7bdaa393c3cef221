package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

// BuildFunc turns a create or update input into the stored value for id.
type BuildFunc[ID comparable, V any, In any] func(id ID, in In) V

// CRUDRepo is an in-memory CRUD repository. Ids are assigned by newID on Create.
type CRUDRepo[ID comparable, V any, In any] struct {
	writes  sync.Mutex
	store   *cache.Map[ID, V]
	newID   func() ID
	build   BuildFunc[ID, V, In]
	changes *events.Broker[repos.Change[ID, V]]
}

var _ repos.CRUDRepo[int64, string, string] = (*CRUDRepo[int64, string, string])(nil)

// NewCRUDRepo creates an empty repository.
func NewCRUDRepo[ID comparable, V any, In any](newID func() ID, build BuildFunc[ID, V, In]) *CRUDRepo[ID, V, In] {
	return &CRUDRepo[ID, V, In]{
		store:   cache.NewMap[ID, V](),
		newID:   newID,
		build:   build,
		changes: events.NewBroker[repos.Change[ID, V]](),
	}
}

// Sequence returns an id generator yielding 1, 2, 3...
func Sequence() func() int64 {
	var n atomic.Int64
	return func() int64 { return n.Add(1) }
}

func (r *CRUDRepo[ID, V, In]) GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error) {
	return r.store.Values(ctx, p, false)
}

func (r *CRUDRepo[ID, V, In]) GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[ID], error) {
	return r.store.Keys(ctx, p, false)
}

func (r *CRUDRepo[ID, V, In]) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx)
}

func (r *CRUDRepo[ID, V, In]) Contains(ctx context.Context, id ID) (bool, error) {
	return r.store.Contains(ctx, id)
}

func (r *CRUDRepo[ID, V, In]) GetAll(ctx context.Context) (map[ID]V, error) {
	return r.store.GetAll(ctx)
}

func (r *CRUDRepo[ID, V, In]) GetByID(ctx context.Context, id ID) (V, bool, error) {
	return r.store.Get(ctx, id)
}

// Create stores one new object per input, in input order.
func (r *CRUDRepo[ID, V, In]) Create(ctx context.Context, values []In) ([]V, error) {
	r.writes.Lock()
	defer r.writes.Unlock()

	created := make([]V, 0, len(values))
	for _, in := range values {
		id := r.newID()
		v := r.build(id, in)
		if err := r.store.Set(ctx, map[ID]V{id: v}); err != nil {
			return created, err
		}
		created = append(created, v)
		r.changes.Publish(repos.SetChange(id, v))
	}
	return created, nil
}

// Update replaces the object stored for id. Unknown ids report false and change nothing.
func (r *CRUDRepo[ID, V, In]) Update(ctx context.Context, id ID, value In) (V, bool, error) {
	r.writes.Lock()
	defer r.writes.Unlock()

	var zero V
	ok, err := r.store.Contains(ctx, id)
	if err != nil || !ok {
		return zero, false, err
	}
	v := r.build(id, value)
	if err := r.store.Set(ctx, map[ID]V{id: v}); err != nil {
		return zero, false, err
	}
	r.changes.Publish(repos.SetChange(id, v))
	return v, true, nil
}

// DeleteByID removes ids. Unknown ids are ignored.
func (r *CRUDRepo[ID, V, In]) DeleteByID(_ context.Context, ids []ID) error {
	r.writes.Lock()
	defer r.writes.Unlock()
	for _, id := range r.store.Delete(ids...) {
		r.changes.Publish(repos.RemovedChange[ID, V](id))
	}
	return nil
}

// Changes returns the ordered change stream.
func (r *CRUDRepo[ID, V, In]) Changes() events.Source[repos.Change[ID, V]] {
	return r.changes
}

// Close ends every change subscription.
func (r *CRUDRepo[ID, V, In]) Close() {
	r.changes.Close()
}
