// Package locker provides the shared-read / exclusive-write lock used by the mirror
// wrappers.
//
// Unlike sync.RWMutex, acquisition takes a context so callers waiting behind a long
// reconciliation pass can give up, and a lock can be created already write-held and
// released later from another goroutine with UnlockWrite. The full mirror wrappers use
// that to make early reads queue behind their initial load.
//
// Admission is FIFO: once a writer is waiting, readers arriving after it wait too, so a
// steady stream of readers cannot starve a writer.
//
// Releasing a lock that is not held panics with a *errors.Error of category
// CategoryLockMisuse. That is a programming error and is not meant to be recovered.
package locker

import (
	"context"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/semaphore"
)

// CategoryLockMisuse tags panics raised when a lock is released without being held.
const CategoryLockMisuse goerrors.Category = "lock_misuse"

// writeWeight is the semaphore weight of a writer. Readers take one unit each, so the
// number of concurrent readers is bounded by it as well.
const writeWeight int64 = 1 << 30

// RWLocker is a context aware read/write lock. The zero value is not usable, use New.
type RWLocker struct {
	sem     *semaphore.Weighted
	readers atomic.Int64
	writing atomic.Bool
}

// Option configures a RWLocker.
type Option func(*RWLocker)

// WithWriteLocked creates the lock already held for writing. Release it with UnlockWrite.
func WithWriteLocked() Option {
	return func(l *RWLocker) {
		// cannot block: the semaphore is fresh
		l.sem.TryAcquire(writeWeight)
		l.writing.Store(true)
	}
}

// New creates an unlocked RWLocker unless an option says otherwise.
func New(opts ...Option) *RWLocker {
	l := &RWLocker{sem: semaphore.NewWeighted(writeWeight)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RLock acquires a shared hold, waiting for any current or queued writer.
func (l *RWLocker) RLock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.readers.Add(1)
	return nil
}

// RUnlock releases a shared hold.
func (l *RWLocker) RUnlock() {
	if l.readers.Add(-1) < 0 {
		l.readers.Add(1)
		panic(misuse("RUnlock of a lock without readers"))
	}
	l.sem.Release(1)
}

// Lock acquires the exclusive hold.
func (l *RWLocker) Lock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, writeWeight); err != nil {
		return err
	}
	l.writing.Store(true)
	return nil
}

// Unlock releases the exclusive hold.
func (l *RWLocker) Unlock() {
	if !l.writing.CompareAndSwap(true, false) {
		panic(misuse("Unlock of a lock that is not write locked"))
	}
	l.sem.Release(writeWeight)
}

// UnlockWrite releases a write hold taken elsewhere, typically by WithWriteLocked at
// construction time, once asynchronous initialization finished.
func (l *RWLocker) UnlockWrite() {
	l.Unlock()
}

// IsWriteLocked reports whether a writer currently holds the lock.
func (l *RWLocker) IsWriteLocked() bool {
	return l.writing.Load()
}

// Readers returns the number of shared holds.
func (l *RWLocker) Readers() int64 {
	return l.readers.Load()
}

// WithRead runs fn under a shared hold. The hold is released on every exit path,
// including a panic in fn.
func (l *RWLocker) WithRead(ctx context.Context, fn func() error) error {
	if err := l.RLock(ctx); err != nil {
		return err
	}
	defer l.RUnlock()
	return fn()
}

// WithWrite runs fn under the exclusive hold. The hold is released on every exit path,
// including a panic in fn.
func (l *RWLocker) WithWrite(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// Read runs fn under a shared hold of l and returns its result.
func Read[T any](ctx context.Context, l *RWLocker, fn func() (T, error)) (T, error) {
	if err := l.RLock(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer l.RUnlock()
	return fn()
}

// Write runs fn under the exclusive hold of l and returns its result.
func Write[T any](ctx context.Context, l *RWLocker, fn func() (T, error)) (T, error) {
	if err := l.Lock(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer l.Unlock()
	return fn()
}

func misuse(msg string) *goerrors.Error {
	return goerrors.New(msg, CategoryLockMisuse)
}
