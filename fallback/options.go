package fallback

import (
	"time"

	"github.com/goliatone/go-repository-mirror/internal/naming"
	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/metrics"
	"github.com/goliatone/go-repository-mirror/reconcile"
)

// DefaultInterval is the pause between two background reconciliation passes.
const DefaultInterval = time.Minute

type options struct {
	name      string
	interval  time.Duration
	wrapper   ActionWrapper
	logger    logging.Logger
	metrics   metrics.Recorder
	reconcile []reconcile.Option
}

// Option configures an auto-recache repository.
type Option func(*options)

// WithName sets the name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithInterval sets the pause between background passes. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithActionWrapper sets how reads call the origin. The default is Direct.
func WithActionWrapper(w ActionWrapper) Option {
	return func(o *options) {
		if w != nil {
			o.wrapper = w
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

// WithReconcileOptions passes options to every reconciliation pass, for instance
// reconcile.WithClearMode or reconcile.WithPageSize.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(o *options) {
		o.reconcile = append(o.reconcile, opts...)
	}
}

func newOptions[V any](opts []Option) options {
	o := options{
		name:     naming.TypeName[V](),
		interval: DefaultInterval,
		wrapper:  Direct(),
		logger:   logging.Nop{},
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
