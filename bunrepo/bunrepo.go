// Package bunrepo adapts a go-repository-bun repository into a CRUD origin with a change
// stream, so relational tables can sit behind the cache wrappers of this module.
//
// Ids are strings, as in go-repository-bun. Create and Update take full records; the
// record passed to Update gets its id from the Update argument. Every successful write is
// published on Changes. Writes made to the table by other processes are not observed;
// pair the adapter with an auto-recache wrapper or periodic Invalidate calls for those.
package bunrepo

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-mirror/events"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

// Store is the part of repository.Repository the adapter uses.
type Store[T any] interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)
	CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error
}

var _ Store[struct{}] = (repository.Repository[struct{}])(nil)

// Config configures a CRUDRepo.
type Config[T any] struct {
	Store Store[T]
	// IDOf returns the primary key of a record.
	IDOf func(T) string
	// WithID returns record with its primary key set to id.
	WithID func(record T, id string) T
	// IDColumn is the primary key column used for ordering and deletes. Default "id".
	IDColumn string
}

// CRUDRepo is a repos.CRUDRepo over a go-repository-bun Store. Pages are ordered by the
// id column.
type CRUDRepo[T any] struct {
	store    Store[T]
	idOf     func(T) string
	withID   func(T, string) T
	idColumn string
	changes  *events.Broker[repos.Change[string, T]]
}

var _ repos.CRUDRepo[string, struct{}, struct{}] = (*CRUDRepo[struct{}])(nil)

// New validates cfg and creates the adapter.
func New[T any](cfg Config[T]) (*CRUDRepo[T], error) {
	if cfg.Store == nil || cfg.IDOf == nil || cfg.WithID == nil {
		return nil, goerrors.New("bun CRUD adapter requires Store, IDOf and WithID", goerrors.CategoryValidation)
	}
	col := cfg.IDColumn
	if col == "" {
		col = "id"
	}
	return &CRUDRepo[T]{
		store:    cfg.Store,
		idOf:     cfg.IDOf,
		withID:   cfg.WithID,
		idColumn: col,
		changes:  events.NewBroker[repos.Change[string, T]](),
	}, nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return goerrors.HasCategory(err, goerrors.CategoryNotFound) || errors.Is(err, sql.ErrNoRows)
}

// Paginate limits a select to the page p.
func Paginate(p pagination.Pagination) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(p.Limit()).Offset(p.Offset())
	}
}

// OrderBy sorts a select by column, ascending.
func OrderBy(column string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("? ASC", bun.Ident(column))
	}
}

// WhereIDIn restricts a delete to the given ids.
func WhereIDIn(column string, ids []string) repository.DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("? IN (?)", bun.Ident(column), bun.In(ids))
	}
}

func (r *CRUDRepo[T]) page(ctx context.Context, p pagination.Pagination) ([]T, int, error) {
	return r.store.List(ctx, OrderBy(r.idColumn), Paginate(p))
}

func (r *CRUDRepo[T]) GetByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[T], error) {
	records, total, err := r.page(ctx, p)
	if err != nil {
		return pagination.Result[T]{}, err
	}
	return pagination.Result[T]{Results: records, Page: p.Page, Size: p.Size, Total: int64(total)}, nil
}

func (r *CRUDRepo[T]) GetIDsByPagination(ctx context.Context, p pagination.Pagination) (pagination.Result[string], error) {
	page, err := r.GetByPagination(ctx, p)
	if err != nil {
		return pagination.Result[string]{}, err
	}
	return pagination.Map(page, r.idOf), nil
}

func (r *CRUDRepo[T]) Count(ctx context.Context) (int64, error) {
	n, err := r.store.Count(ctx)
	return int64(n), err
}

func (r *CRUDRepo[T]) Contains(ctx context.Context, id string) (bool, error) {
	_, ok, err := r.GetByID(ctx, id)
	return ok, err
}

// GetAll pages through the whole table.
func (r *CRUDRepo[T]) GetAll(ctx context.Context) (map[string]T, error) {
	records, err := repos.Drain[T](ctx, pagination.DefaultSize, r.GetByPagination)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(records))
	for _, rec := range records {
		out[r.idOf(rec)] = rec
	}
	return out, nil
}

// GetByID maps a not found error to ok=false.
func (r *CRUDRepo[T]) GetByID(ctx context.Context, id string) (T, bool, error) {
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		var zero T
		if IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return rec, true, nil
}

// Create inserts values and publishes the stored records.
func (r *CRUDRepo[T]) Create(ctx context.Context, values []T) ([]T, error) {
	if len(values) == 0 {
		return nil, nil
	}
	created, err := r.store.CreateMany(ctx, values)
	if err != nil {
		return nil, err
	}
	for _, rec := range created {
		r.changes.Publish(repos.SetChange(r.idOf(rec), rec))
	}
	return created, nil
}

// Update stores value under id. An unknown id reports ok=false without writing.
func (r *CRUDRepo[T]) Update(ctx context.Context, id string, value T) (T, bool, error) {
	var zero T
	if _, ok, err := r.GetByID(ctx, id); err != nil || !ok {
		return zero, false, err
	}
	updated, err := r.store.Update(ctx, r.withID(value, id))
	if err != nil {
		return zero, false, err
	}
	r.changes.Publish(repos.SetChange(id, updated))
	return updated, true, nil
}

// DeleteByID deletes ids with one statement and publishes a removal per id.
func (r *CRUDRepo[T]) DeleteByID(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.store.DeleteWhere(ctx, WhereIDIn(r.idColumn, ids)); err != nil {
		return err
	}
	for _, id := range ids {
		r.changes.Publish(repos.RemovedChange[string, T](id))
	}
	return nil
}

func (r *CRUDRepo[T]) Changes() events.Source[repos.Change[string, T]] {
	return r.changes
}

// Close closes the change stream.
func (r *CRUDRepo[T]) Close() error {
	r.changes.Close()
	return nil
}
