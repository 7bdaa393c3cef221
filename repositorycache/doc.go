// Package repositorycache provides read-through / write-through cache repositories for
// key-value and CRUD origins.
//
// # Overview
//
// The cache here is a point-lookup accelerator, not a mirror. Only Get (key-value) and
// GetByID (CRUD) are answered from the cache; pagination, counts and GetAll always go to
// the origin:
//
//  1. Check the cache for the key
//  2. On a hit, return the cached value
//  3. On a miss, call the origin (concurrent misses for one key share the call)
//  4. If the origin found a value, store it in the cache
//  5. Return the origin result
//
// Contains answers true from the cache and only asks the origin on a miss.
//
// # Basic Usage
//
//	users := repositorycache.NewReadCRUD[int64, User](origin, nil)
//	user, ok, err := users.GetByID(ctx, 42)
//
// Mutable origins get a write-through wrapper that follows the origin change stream:
//
//	repo := repositorycache.NewCRUD[int64, User, NewUser](ctx, origin, nil, func(u User) int64 { return u.ID })
//	defer repo.Close()
//
// # Write Handling
//
// Writes go to the origin first. When the origin accepts them, the wrapper mirrors its own
// results into the cache immediately, so a caller reads its own writes. The change stream
// subscription, bound to the constructor context, applies every ChangeSet and ChangeRemoved
// event as well, which covers writes made through other handles on the same origin.
// There is no ordering guarantee between a concurrent read-through population and an
// event driven update of the same key; the last write seen by the cache wins.
//
// # Forcing a Refresh
//
// A context marked with WithRefresh makes point lookups skip the cache and store the
// fresh origin value. Invalidate drops the whole cache.
//
// # Error Handling
//
// Origin errors are returned unchanged. Cache read failures are logged and treated as
// misses; cache write failures after an accepted origin write are returned to the caller.
package repositorycache
