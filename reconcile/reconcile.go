// Package reconcile converges a cache store to a full snapshot of an origin repository.
//
// A pass has two phases. The origin is drained completely through its paginated reads
// first; nothing touches the cache until that succeeds, so a failed drain leaves the cache
// exactly as it was. The snapshot is then applied with the configured ClearMode.
//
// When a locker is supplied the whole pass, drain included, runs under its exclusive
// hold. Writes guarded by the same locker are then totally ordered with reconciliation.
package reconcile

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/locker"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

// ClearMode selects how a snapshot replaces the cache contents.
type ClearMode int

const (
	// ClearAfterSet stores the snapshot first and then drops entries missing from it.
	// Readers may briefly see stale entries but never an empty cache.
	ClearAfterSet ClearMode = iota
	// ClearBeforeSet empties the cache and then stores the snapshot.
	// Readers without the locker may briefly see an empty cache.
	ClearBeforeSet
)

func (m ClearMode) String() string {
	switch m {
	case ClearAfterSet:
		return "clear_after_set"
	case ClearBeforeSet:
		return "clear_before_set"
	default:
		return "unknown"
	}
}

// Func runs one reconciliation pass.
type Func func(ctx context.Context) error

type options struct {
	pageSize    int
	clearMode   ClearMode
	locker      *locker.RWLocker
	concurrency int
}

// Option configures a reconciliation pass.
type Option func(*options)

// WithPageSize sets the page size used to drain the origin.
func WithPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

// WithClearMode selects the ClearMode. The default is ClearAfterSet.
func WithClearMode(mode ClearMode) Option {
	return func(o *options) {
		o.clearMode = mode
	}
}

// WithLocker runs the pass under the exclusive hold of l.
func WithLocker(l *locker.RWLocker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithConcurrency bounds how many point lookups resolve drained keys at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		pageSize:    pagination.DefaultSize,
		clearMode:   ClearAfterSet,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// KeyValue reconciles c with every key-value pair of origin. Keys that stop resolving
// between listing and lookup are treated as deleted.
func KeyValue[K comparable, V any](ctx context.Context, c cache.KVCache[K, V], origin repos.ReadKeyValueRepo[K, V], opts ...Option) error {
	o := newOptions(opts)
	return o.run(ctx, func(ctx context.Context) error {
		keys, err := repos.DrainKeys(ctx, origin, o.pageSize)
		if err != nil {
			return originFailure(err, "origin key drain failed")
		}
		snapshot, err := resolve(ctx, keys, o.concurrency, origin.Get)
		if err != nil {
			return originFailure(err, "origin lookup failed")
		}
		return apply(ctx, c, snapshot, o.clearMode, o.pageSize)
	})
}

// CRUD reconciles c with every object of origin, keyed by id.
func CRUD[ID comparable, V any](ctx context.Context, c cache.KVCache[ID, V], origin repos.ReadCRUDRepo[ID, V], opts ...Option) error {
	o := newOptions(opts)
	return o.run(ctx, func(ctx context.Context) error {
		ids, err := repos.DrainIDs(ctx, origin, o.pageSize)
		if err != nil {
			return originFailure(err, "origin id drain failed")
		}
		snapshot, err := resolve(ctx, ids, o.concurrency, origin.GetByID)
		if err != nil {
			return originFailure(err, "origin lookup failed")
		}
		return apply(ctx, c, snapshot, o.clearMode, o.pageSize)
	})
}

// KeyValues reconciles a cache of value lists with a one-to-many origin.
func KeyValues[K comparable, V any](ctx context.Context, c cache.KVCache[K, []V], origin repos.ReadKeyValuesRepo[K, V], opts ...Option) error {
	o := newOptions(opts)
	return o.run(ctx, func(ctx context.Context) error {
		keys, err := repos.Drain(ctx, o.pageSize, func(ctx context.Context, p pagination.Pagination) (pagination.Result[K], error) {
			return origin.Keys(ctx, p, false)
		})
		if err != nil {
			return originFailure(err, "origin key drain failed")
		}
		snapshot, err := resolve(ctx, keys, o.concurrency, func(ctx context.Context, k K) ([]V, bool, error) {
			values, err := repos.Drain(ctx, o.pageSize, func(ctx context.Context, p pagination.Pagination) (pagination.Result[V], error) {
				return origin.Get(ctx, k, p, false)
			})
			return values, true, err
		})
		if err != nil {
			return originFailure(err, "origin values drain failed")
		}
		return apply(ctx, c, snapshot, o.clearMode, o.pageSize)
	})
}

// Snapshot reconciles c with the map returned by fetch.
func Snapshot[K comparable, V any](ctx context.Context, c cache.KVCache[K, V], fetch func(ctx context.Context) (map[K]V, error), opts ...Option) error {
	o := newOptions(opts)
	return o.run(ctx, func(ctx context.Context) error {
		snapshot, err := fetch(ctx)
		if err != nil {
			return originFailure(err, "origin snapshot failed")
		}
		return apply(ctx, c, snapshot, o.clearMode, o.pageSize)
	})
}

// Apply replaces the contents of c with snapshot. Only the clear mode, page size and
// locker options are used.
func Apply[K comparable, V any](ctx context.Context, c cache.KVCache[K, V], snapshot map[K]V, opts ...Option) error {
	o := newOptions(opts)
	return o.run(ctx, func(ctx context.Context) error {
		return apply(ctx, c, snapshot, o.clearMode, o.pageSize)
	})
}

func (o options) run(ctx context.Context, pass func(ctx context.Context) error) error {
	if o.locker == nil {
		return pass(ctx)
	}
	return o.locker.WithWrite(ctx, func() error { return pass(ctx) })
}

func resolve[K comparable, V any](ctx context.Context, keys []K, concurrency int, lookup func(ctx context.Context, k K) (V, bool, error)) (map[K]V, error) {
	snapshot := make(map[K]V, len(keys))
	if concurrency <= 1 {
		for _, k := range keys {
			v, ok, err := lookup(ctx, k)
			if err != nil {
				return nil, err
			}
			if ok {
				snapshot[k] = v
			}
		}
		return snapshot, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, k := range keys {
		g.Go(func() error {
			v, ok, err := lookup(gctx, k)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			snapshot[k] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func apply[K comparable, V any](ctx context.Context, c cache.KVCache[K, V], snapshot map[K]V, mode ClearMode, pageSize int) error {
	if mode == ClearBeforeSet {
		if err := c.Clear(ctx); err != nil {
			return cacheFailure(err, "cache clear failed")
		}
		if err := c.Set(ctx, snapshot); err != nil {
			return cacheFailure(err, "cache set failed")
		}
		return nil
	}

	if err := c.Set(ctx, snapshot); err != nil {
		return cacheFailure(err, "cache set failed")
	}
	cached, err := repos.DrainKeys[K, V](ctx, c, pageSize)
	if err != nil {
		return cacheFailure(err, "cache key drain failed")
	}
	var stale []K
	for _, k := range cached {
		if _, ok := snapshot[k]; !ok {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := c.Unset(ctx, stale); err != nil {
		return cacheFailure(err, "cache unset failed")
	}
	return nil
}

// originFailure tags err as an external failure even when the origin already returned a
// categorized error, so callers can tell origin problems from cache problems.
func originFailure(err error, msg string) error {
	e := goerrors.New(msg, goerrors.CategoryExternal)
	e.Source = err
	return e
}

func cacheFailure(err error, msg string) error {
	e := goerrors.New(msg, goerrors.CategoryInternal)
	e.Source = err
	return e
}
