// Package stores holds helpers shared by the byte oriented cache stores in its
// subpackages.
package stores

import (
	"sort"

	"github.com/goliatone/go-repository-mirror/codec"
	"github.com/goliatone/go-repository-mirror/pagination"
)

// Field is a stored entry together with the string key it is stored under.
type Field[K comparable, V any] struct {
	Name  string
	Entry codec.Entry[K, V]
}

// Sort orders fields by their string key, the enumeration order of byte stores.
func Sort[K comparable, V any](fields []Field[K, V]) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
}

// Keys pages the keys of sorted fields.
func Keys[K comparable, V any](fields []Field[K, V], p pagination.Pagination, reversed bool) pagination.Result[K] {
	return pagination.Map(pagination.Slice(fields, p, reversed), func(f Field[K, V]) K { return f.Entry.Key })
}

// Values pages the values of sorted fields.
func Values[K comparable, V any](fields []Field[K, V], p pagination.Pagination, reversed bool) pagination.Result[V] {
	return pagination.Map(pagination.Slice(fields, p, reversed), func(f Field[K, V]) V { return f.Entry.Value })
}

// KeysByValue pages the keys whose value satisfies equal.
func KeysByValue[K comparable, V any](fields []Field[K, V], v V, equal func(a, b V) bool, p pagination.Pagination, reversed bool) pagination.Result[K] {
	matching := make([]K, 0)
	for _, f := range fields {
		if equal(f.Entry.Value, v) {
			matching = append(matching, f.Entry.Key)
		}
	}
	return pagination.Slice(matching, p, reversed)
}

// ToMap collects fields into a map.
func ToMap[K comparable, V any](fields []Field[K, V]) map[K]V {
	out := make(map[K]V, len(fields))
	for _, f := range fields {
		out[f.Entry.Key] = f.Entry.Value
	}
	return out
}
