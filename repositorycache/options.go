package repositorycache

import (
	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/internal/naming"
	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/metrics"
)

type options struct {
	name       string
	logger     logging.Logger
	metrics    metrics.Recorder
	serializer cache.KeySerializer
}

// Option configures a cache repository.
type Option func(*options)

// WithName sets the name used in logs, metric labels and singleflight keys.
// It defaults to the snake_case name of the value type.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = logging.OrNop(l)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = metrics.OrNop(r)
	}
}

// WithKeySerializer sets the serializer that collapses concurrent misses for equal keys.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(o *options) {
		if s != nil {
			o.serializer = s
		}
	}
}

func newOptions[V any](opts []Option) options {
	o := options{
		name:       naming.TypeName[V](),
		logger:     logging.Nop{},
		metrics:    metrics.Nop{},
		serializer: cache.NewDefaultKeySerializer(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
