package fallback

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/reconcile"
)

// loop runs a reconciliation pass, waits for the interval and repeats until stopped.
type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startLoop(ctx context.Context, interval time.Duration, pass reconcile.Func) *loop {
	ctx, cancel := context.WithCancel(ctx)
	l := &loop{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			_ = pass(ctx)
			timer.Reset(interval)
		}
	}()
	return l
}

func (l *loop) stop() {
	l.once.Do(l.cancel)
	<-l.done
}

// observe wraps a pass with duration and failure reporting. Failures are logged and
// returned; the loop ignores them and tries again on the next tick. Passes run one at a
// time, so Invalidate waits for a running loop pass before starting its own.
func (o options) observe(pass reconcile.Func) reconcile.Func {
	running := semaphore.NewWeighted(1)
	return func(ctx context.Context) error {
		if err := running.Acquire(ctx, 1); err != nil {
			return err
		}
		defer running.Release(1)

		timer := o.metrics.ReconcileDuration(o.name)
		err := pass(ctx)
		timer.ObserveDuration()
		if err != nil && ctx.Err() == nil {
			o.metrics.ReconcileFailed(o.name)
			o.logger.Warn("reconciliation failed", logging.Fields{"repo": o.name, "error": err})
		}
		return err
	}
}

// attempt reads from the origin through the action wrapper. On success refresh, when set,
// updates the cache with the result. On failure the read is served by fallback.
func attempt[T any](
	ctx context.Context,
	o options,
	origin func(ctx context.Context) (T, error),
	refresh func(ctx context.Context, v T) error,
	fallback func(ctx context.Context) (T, error),
) (T, error) {
	v, err := Call(ctx, o.wrapper, origin)
	if err == nil {
		if refresh != nil {
			if rerr := refresh(ctx, v); rerr != nil {
				o.logger.Warn("cache refresh failed", logging.Fields{"repo": o.name, "error": rerr})
			}
		}
		return v, nil
	}

	o.logger.Debug("origin read failed, serving from cache", logging.Fields{"repo": o.name, "error": err})
	o.metrics.Fallback(o.name)
	return fallback(ctx)
}
