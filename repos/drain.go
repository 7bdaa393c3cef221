package repos

import (
	"context"

	"github.com/goliatone/go-repository-mirror/pagination"
)

// PageFunc fetches one page of T.
type PageFunc[T any] func(ctx context.Context, p pagination.Pagination) (pagination.Result[T], error)

// Drain walks fetch page by page, starting at the first page of the given size, until a
// page reports it is the last one. The first error aborts the walk.
func Drain[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) ([]T, error) {
	var out []T
	p := pagination.FirstPage(pageSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		// an empty page ends the walk even if the origin misreports its total
		if page.IsLast() || len(page.Results) == 0 {
			return out, nil
		}
		p = p.Next()
	}
}

// DrainKeys collects every key of repo.
func DrainKeys[K comparable, V any](ctx context.Context, repo ReadKeyValueRepo[K, V], pageSize int) ([]K, error) {
	return Drain[K](ctx, pageSize, func(ctx context.Context, p pagination.Pagination) (pagination.Result[K], error) {
		return repo.Keys(ctx, p, false)
	})
}

// DrainIDs collects every id of repo.
func DrainIDs[ID comparable, V any](ctx context.Context, repo ReadCRUDRepo[ID, V], pageSize int) ([]ID, error) {
	return Drain[ID](ctx, pageSize, repo.GetIDsByPagination)
}

// CollectAll builds the full key/value map of repo by walking its keys.
// Keys that disappear between listing and lookup are skipped.
func CollectAll[K comparable, V any](ctx context.Context, repo ReadKeyValueRepo[K, V], pageSize int) (map[K]V, error) {
	keys, err := DrainKeys(ctx, repo, pageSize)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		v, ok, err := repo.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}
