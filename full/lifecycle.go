package full

import (
	"context"
	"sync"

	"github.com/goliatone/go-repository-mirror/locker"
	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/reconcile"
)

// background owns the goroutines of a mutable mirror: the initial load and the change
// stream follower.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	ready  chan struct{}
}

func newBackground(ctx context.Context) *background {
	ctx, cancel := context.WithCancel(ctx)
	return &background{ctx: ctx, cancel: cancel, ready: make(chan struct{})}
}

func (b *background) goFunc(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// initialLoad runs load without the locker and then releases the write hold l was created
// with. Ready is closed afterwards, whether the load succeeded or not.
func (b *background) initialLoad(l *locker.RWLocker, o options, load reconcile.Func) {
	if o.skipStart {
		close(b.ready)
		return
	}
	b.goFunc(func(ctx context.Context) {
		defer close(b.ready)
		defer l.UnlockWrite()
		if err := o.observe(ctx, "initial", load); err == nil {
			o.logger.Info("initial load completed", logging.Fields{"repo": o.name})
		}
	})
}

func (b *background) stop() {
	b.once.Do(b.cancel)
	b.wg.Wait()
}

func newLocker(o options) *locker.RWLocker {
	if o.skipStart {
		return locker.New()
	}
	return locker.New(locker.WithWriteLocked())
}
