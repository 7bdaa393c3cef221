// Package cache provides the cache store abstraction used by every wrapper in this module,
// its default implementations and key serialization for string keyed backends.
//
// # Overview
//
// This package exports:
//
//   - KVCache: a key-value store with repository read methods plus bulk Set, Unset and Clear
//   - Map: the default in-process KVCache, unbounded and ordered by insertion
//   - NewBounded: a capacity bounded, TTL based KVCache backed by sturdyc
//   - KeySerializer: builds stable string keys from arbitrary comparable keys
//
// A KVCache publishes no change events. Wrappers that own a store (read-through repos,
// auto-recache repos, full mirrors) are the only writers and report changes themselves.
//
// # Basic Usage
//
//	store := cache.NewMap[string, User]()
//	_ = store.Set(ctx, map[string]User{"u1": alice})
//	user, ok, err := store.Get(ctx, "u1")
//
// A bounded store is configured through Config:
//
//	cfg := cache.DefaultConfig()
//	cfg.Namespace = "users"
//	store, err := cache.NewBounded[string, User](cfg)
//
// Bounded stores forget entries on expiry and eviction. They suit read-through wrappers,
// where a miss goes back to the origin, but not full mirrors, which serve every read from
// the store.
//
// # Key Serialization Strategy
//
// The default key serializer walks keys with reflection:
//
//   - Top level strings are used verbatim
//   - Numbers and booleans use their canonical text form
//   - Arrays and structs are encoded element by element, nested strings quoted
//   - Struct encoding includes unexported fields, since they take part in key equality
//   - Pointers and channels encode their address, matching Go's identity semantics
//
// An optional namespace is joined to the encoded key with KeySeparator. Implement
// KeySerializer when keys need a format shared with other processes, for instance
// when several services read the same redis hash.
//
// # Error Handling
//
// Config.Validate returns a go-errors validation error listing every invalid field.
// In-process stores never fail; their methods keep the error result so remote stores
// can share the interface.
package cache
