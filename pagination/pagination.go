// Package pagination holds the page request and page result types shared by every
// repository and cache wrapper in this module.
//
// Pages are zero based. A Result carries the total number of objects in the underlying
// collection so callers can tell whether they reached the last page without an extra query.
package pagination

import "math"

// DefaultSize is the page size used when a caller does not pick one.
const DefaultSize = 20

// Pagination describes a single page request.
type Pagination struct {
	Page int
	Size int
}

// FirstPage returns the first page with the given size. Non-positive sizes fall back to DefaultSize.
func FirstPage(size int) Pagination {
	if size <= 0 {
		size = DefaultSize
	}
	return Pagination{Page: 0, Size: size}
}

// Next returns the page that follows p.
func (p Pagination) Next() Pagination {
	return Pagination{Page: p.Page + 1, Size: p.Size}
}

// Offset returns the index of the first element covered by p. Offsets that do not fit
// in an int saturate at math.MaxInt.
func (p Pagination) Offset() int {
	if p.Page < 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// Limit returns the page size, never less than one.
func (p Pagination) Limit() int {
	if p.Size <= 0 {
		return DefaultSize
	}
	return p.Size
}

// Result is one page of T.
type Result[T any] struct {
	Results []T
	Page    int
	Size    int
	Total   int64
}

// IsLast reports whether no page follows r.
func (r Result[T]) IsLast() bool {
	if r.Size <= 0 {
		return true
	}
	offset := Pagination{Page: r.Page, Size: r.Size}.Offset()
	return int64(offset) >= r.Total-int64(r.Size)
}

// Pagination returns the request r answers.
func (r Result[T]) Pagination() Pagination {
	return Pagination{Page: r.Page, Size: r.Size}
}

// Empty builds a result with no items for p.
func Empty[T any](p Pagination) Result[T] {
	return Result[T]{Results: []T{}, Page: p.Page, Size: p.Limit(), Total: 0}
}

// Slice pages an ordered slice. When reversed is true the ordering is inverted before
// the page is cut, so page zero holds the last elements of items.
func Slice[T any](items []T, p Pagination, reversed bool) Result[T] {
	size := p.Limit()
	total := len(items)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := total
	if size < total-start {
		end = start + size
	}

	out := make([]T, 0, end-start)
	for i := start; i < end; i++ {
		idx := i
		if reversed {
			idx = total - 1 - i
		}
		out = append(out, items[idx])
	}

	return Result[T]{Results: out, Page: p.Page, Size: size, Total: int64(total)}
}

// Map converts the items of r keeping its paging metadata.
func Map[T, R any](r Result[T], fn func(T) R) Result[R] {
	out := make([]R, len(r.Results))
	for i, item := range r.Results {
		out[i] = fn(item)
	}
	return Result[R]{Results: out, Page: r.Page, Size: r.Size, Total: r.Total}
}
