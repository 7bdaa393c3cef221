// Package fallback provides auto-recache repositories: wrappers that prefer the origin
// for every read and fall back to their own cache when the origin fails.
//
// A background loop, bound to the context passed to the constructor, reconciles the
// cache with the origin, sleeps for the configured interval and repeats. Reads do not
// wait for it. Each read calls the origin through an ActionWrapper (Direct, or Timeout
// to bound slow origins); a successful answer refreshes the affected cache entries and is
// returned, a failed or timed out one is replaced by the cache's answer without an error.
//
//	repo := fallback.NewKeyValue[string, Rate](ctx, rates, nil, func(r Rate) string { return r.Code },
//		fallback.WithInterval(30*time.Second),
//		fallback.WithActionWrapper(fallback.Timeout(200*time.Millisecond)),
//	)
//	defer repo.Close()
//
// A key that neither the origin nor the cache can answer reads as "not found", and a
// listing served from an empty cache is an empty page. Failed background passes leave
// the cache untouched and are logged at warn level; Invalidate runs a pass on demand and
// returns its error instead.
package fallback
