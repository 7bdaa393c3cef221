package testsupport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

// ErrOriginDown is returned by flaky origins while they are failing.
var ErrOriginDown = goerrors.New("origin unavailable", goerrors.CategoryExternal)

// Faults controls failure injection for the flaky origins and counts their calls.
type Faults struct {
	failing atomic.Bool
	mu      sync.Mutex
	gate    chan struct{}
	calls   *xsync.MapOf[string, int64]
}

// NewFaults creates a healthy, open fault controller.
func NewFaults() *Faults {
	return &Faults{calls: xsync.NewMapOf[string, int64]()}
}

// Fail makes every following call return ErrOriginDown until Fail(false).
func (f *Faults) Fail(failing bool) {
	f.failing.Store(failing)
}

// Hold makes every following call block until Release or until its context ends.
func (f *Faults) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks held calls.
func (f *Faults) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Calls returns how many times op was invoked.
func (f *Faults) Calls(op string) int64 {
	n, _ := f.calls.Load(op)
	return n
}

func (f *Faults) enter(ctx context.Context, op string) error {
	f.calls.Compute(op, func(old int64, _ bool) (int64, bool) {
		return old + 1, false
	})

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.failing.Load() {
		return ErrOriginDown
	}
	return nil
}

// FlakyKeyValueRepo wraps a key-value repository with injectable failures.
type FlakyKeyValueRepo[K comparable, V any] struct {
	*Faults
	repo repos.KeyValueRepo[K, V]
}

var _ repos.KeyValueRepo[string, int] = (*FlakyKeyValueRepo[string, int])(nil)

// NewFlakyKeyValueRepo wraps repo.
func NewFlakyKeyValueRepo[K comparable, V any](repo repos.KeyValueRepo[K, V]) *FlakyKeyValueRepo[K, V] {
	return &FlakyKeyValueRepo[K, V]{Faults: NewFaults(), repo: repo}
}

func (r *FlakyKeyValueRepo[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	if err := r.enter(ctx, "Get"); err != nil {
		var zero V
		return zero, false, err
	}
	return r.repo.Get(ctx, k)
}

func (r *FlakyKeyValueRepo[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	if err := r.enter(ctx, "Contains"); err != nil {
		return false, err
	}
	return r.repo.Contains(ctx, k)
}

func (r *FlakyKeyValueRepo[K, V]) Count(ctx context.Context) (int64, error) {
	if err := r.enter(ctx, "Count"); err != nil {
		return 0, err
	}
	return r.repo.Count(ctx)
}

func (r *FlakyKeyValueRepo[K, V]) Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	if err := r.enter(ctx, "Values"); err != nil {
		return pagination.Result[V]{}, err
	}
	return r.repo.Values(ctx, p, reversed)
}

func (r *FlakyKeyValueRepo[K, V]) Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	if err := r.enter(ctx, "Keys"); err != nil {
		return pagination.Result[K]{}, err
	}
	return r.repo.Keys(ctx, p, reversed)
}

func (r *FlakyKeyValueRepo[K, V]) KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	if err := r.enter(ctx, "KeysByValue"); err != nil {
		return pagination.Result[K]{}, err
	}
	return r.repo.KeysByValue(ctx, v, p, reversed)
}

func (r *FlakyKeyValueRepo[K, V]) GetAll(ctx context.Context) (map[K]V, error) {
	if err := r.enter(ctx, "GetAll"); err != nil {
		return nil, err
	}
	return r.repo.GetAll(ctx)
}

func (r *FlakyKeyValueRepo[K, V]) Set(ctx context.Context, toSet map[K]V) error {
	if err := r.enter(ctx, "Set"); err != nil {
		return err
	}
	return r.repo.Set(ctx, toSet)
}

func (r *FlakyKeyValueRepo[K, V]) Unset(ctx context.Context, keys []K) error {
	if err := r.enter(ctx, "Unset"); err != nil {
		return err
	}
	return r.repo.Unset(ctx, keys)
}

func (r *FlakyKeyValueRepo[K, V]) UnsetWithValues(ctx context.Context, values []V) error {
	if err := r.enter(ctx, "UnsetWithValues"); err != nil {
		return err
	}
	return r.repo.UnsetWithValues(ctx, values)
}

func (r *FlakyKeyValueRepo[K, V]) Clear(ctx context.Context) error {
	if err := r.enter(ctx, "Clear"); err != nil {
		return err
	}
	return r.repo.Clear(ctx)
}

// Changes passes the wrapped stream through without fault injection.
func (r *FlakyKeyValueRepo[K, V]) Changes() events.Source[repos.Change[K, V]] {
	return r.repo.Changes()
}

// FlakyCRUDRepo wraps a CRUD repository with injectable failures.
type FlakyCRUDRepo[ID comparable, V any, In any] struct {
	*Faults
	repo repos.CRUDRepo[ID, V, In]
}

var _ repos.CRUDRepo[int64, string, string] = (*FlakyCRUDRepo[int64, string, string])(nil)

// NewFlakyCRUDRepo wraps repo.
func NewFlakyCRUDRepo[ID comparable, V any, In any](repo repos.CRUDRepo[ID, V, In]) *FlakyCRUDRepo[ID, V, In] {
	return &FlakyCRUDRepo[ID, V, In]{Faults: NewFaults(), repo: repo}
}

func (r *FlakyCRUDRepo[ID, V, In]) GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error) {
	if err := r.enter(ctx, "GetByPagination"); err != nil {
		return pagination.Result[V]{}, err
	}
	return r.repo.GetByPagination(ctx, p)
}

func (r *FlakyCRUDRepo[ID, V, In]) GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[ID], error) {
	if err := r.enter(ctx, "GetIDsByPagination"); err != nil {
		return pagination.Result[ID]{}, err
	}
	return r.repo.GetIDsByPagination(ctx, p)
}

func (r *FlakyCRUDRepo[ID, V, In]) Count(ctx context.Context) (int64, error) {
	if err := r.enter(ctx, "Count"); err != nil {
		return 0, err
	}
	return r.repo.Count(ctx)
}

func (r *FlakyCRUDRepo[ID, V, In]) Contains(ctx context.Context, id ID) (bool, error) {
	if err := r.enter(ctx, "Contains"); err != nil {
		return false, err
	}
	return r.repo.Contains(ctx, id)
}

func (r *FlakyCRUDRepo[ID, V, In]) GetAll(ctx context.Context) (map[ID]V, error) {
	if err := r.enter(ctx, "GetAll"); err != nil {
		return nil, err
	}
	return r.repo.GetAll(ctx)
}

func (r *FlakyCRUDRepo[ID, V, In]) GetByID(ctx context.Context, id ID) (V, bool, error) {
	if err := r.enter(ctx, "GetByID"); err != nil {
		var zero V
		return zero, false, err
	}
	return r.repo.GetByID(ctx, id)
}

func (r *FlakyCRUDRepo[ID, V, In]) Create(ctx context.Context, values []In) ([]V, error) {
	if err := r.enter(ctx, "Create"); err != nil {
		return nil, err
	}
	return r.repo.Create(ctx, values)
}

func (r *FlakyCRUDRepo[ID, V, In]) Update(ctx context.Context, id ID, value In) (V, bool, error) {
	if err := r.enter(ctx, "Update"); err != nil {
		var zero V
		return zero, false, err
	}
	return r.repo.Update(ctx, id, value)
}

func (r *FlakyCRUDRepo[ID, V, In]) DeleteByID(ctx context.Context, ids []ID) error {
	if err := r.enter(ctx, "DeleteByID"); err != nil {
		return err
	}
	return r.repo.DeleteByID(ctx, ids)
}

// Changes passes the wrapped stream through without fault injection.
func (r *FlakyCRUDRepo[ID, V, In]) Changes() events.Source[repos.Change[ID, V]] {
	return r.repo.Changes()
}

// Eventually polls cond every few milliseconds until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
