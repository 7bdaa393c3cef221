package full

import (
	"context"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/internal/naming"
	"github.com/goliatone/go-repository-mirror/locker"
	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/metrics"
	"github.com/goliatone/go-repository-mirror/reconcile"
	"github.com/goliatone/go-repository-mirror/repos"
)

type options struct {
	name      string
	logger    logging.Logger
	metrics   metrics.Recorder
	skipStart bool
	reconcile []reconcile.Option
}

// Option configures a mirror repository.
type Option func(*options)

// WithName sets the name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = logging.OrNop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = metrics.OrNop(r)
	}
}

// WithSkipStartInvalidate disables the initial load of mutable mirrors. The mirror starts
// unlocked with whatever the store already holds.
func WithSkipStartInvalidate() Option {
	return func(o *options) {
		o.skipStart = true
	}
}

// WithReconcileOptions passes options to every reconciliation pass. The mirror supplies
// its own locker, so reconcile.WithLocker must not be given here.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(o *options) {
		o.reconcile = append(o.reconcile, opts...)
	}
}

func newOptions[V any](opts []Option) options {
	o := options{
		name:    naming.TypeName[V](),
		logger:  logging.Nop{},
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// locked returns the reconcile options of a pass guarded by l.
func (o options) locked(l *locker.RWLocker) []reconcile.Option {
	out := make([]reconcile.Option, 0, len(o.reconcile)+1)
	out = append(out, o.reconcile...)
	return append(out, reconcile.WithLocker(l))
}

func (o options) observe(ctx context.Context, phase string, pass reconcile.Func) error {
	timer := o.metrics.ReconcileDuration(o.name)
	err := pass(ctx)
	timer.ObserveDuration()
	if err != nil {
		o.metrics.ReconcileFailed(o.name)
		o.logger.Warn("reconciliation failed", logging.Fields{"repo": o.name, "phase": phase, "error": err})
		return err
	}
	o.logger.Debug("reconciliation completed", logging.Fields{"repo": o.name, "phase": phase})
	return nil
}

func mirrorChange[K comparable, V any](ctx context.Context, l *locker.RWLocker, store cache.KVCache[K, V], c repos.Change[K, V], o options) {
	err := l.WithWrite(ctx, func() error {
		switch c.Kind {
		case repos.ChangeSet:
			return store.Set(ctx, map[K]V{c.Key: c.Value})
		case repos.ChangeRemoved:
			return store.Unset(ctx, []K{c.Key})
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		o.logger.Warn("mirror change failed", logging.Fields{"repo": o.name, "change": c.Kind.String(), "error": err})
	}
}
