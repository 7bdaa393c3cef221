// Package full provides direct full-mirror repositories: wrappers that answer every read
// from their own store and only use the origin to write and to reconcile.
//
// Each mirror owns a locker.RWLocker. Reads take its shared hold; reconciliation passes,
// mirrored writes and mirrored change events take the exclusive hold, so a read never
// observes a half applied pass or write.
//
// Mutable mirrors are built in two phases. The constructor creates the lock already
// write-held, starts the initial load in the background and returns. Reads issued before
// the load finished wait for it instead of seeing an empty store:
//
//	mirror := full.NewKeyValue[string, int](ctx, origin, nil)
//	defer mirror.Close()
//	v, ok, err := mirror.Get(ctx, "a") // waits for the initial load
//
// A failed initial load is logged and still releases the lock. WithSkipStartInvalidate
// skips the load entirely; Invalidate reloads on demand.
//
// Writes go to the origin first. An origin error is returned and the store is left
// untouched. Writes made through other handles on the origin reach the store through
// the origin change stream.
//
// The store must not be shared with another wrapper, and it must not lose entries on its
// own: a TTL or capacity bounded store turns evicted entries into wrong "not found" answers.
package full
