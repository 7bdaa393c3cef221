// Package metrics declares the instrumentation hooks of the cache wrappers so a
// backend (Prometheus or anything else) can be plugged in without the wrappers
// depending on it.
//
// Every hook takes the wrapper name configured with the wrapper's WithName option.
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	ObserveDuration()
}

// Recorder receives cache wrapper events.
type Recorder interface {
	// CacheHit records a read served from the cache store.
	CacheHit(repo string)
	// CacheMiss records a read that had to go to the origin.
	CacheMiss(repo string)
	// Fallback records a read served from the cache because the origin failed.
	Fallback(repo string)
	// ReconcileDuration starts timing one reconciliation pass.
	ReconcileDuration(repo string) Timer
	// ReconcileFailed records a reconciliation pass that left the cache untouched.
	ReconcileFailed(repo string)
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a no-op Timer.
func NopTimer() Timer { return nopTimer{} }

// Nop is a Recorder that records nothing.
type Nop struct{}

func (Nop) CacheHit(string)                {}
func (Nop) CacheMiss(string)               {}
func (Nop) Fallback(string)                {}
func (Nop) ReconcileDuration(string) Timer { return nopTimer{} }
func (Nop) ReconcileFailed(string)         {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
