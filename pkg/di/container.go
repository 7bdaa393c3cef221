package di

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/fallback"
	"github.com/goliatone/go-repository-mirror/full"
	"github.com/goliatone/go-repository-mirror/logging"
	"github.com/goliatone/go-repository-mirror/metrics"
	"github.com/goliatone/go-repository-mirror/repos"
	"github.com/goliatone/go-repository-mirror/repositorycache"
)

// Container provides dependency injection for the cache wrappers.
// It holds the logger, metrics recorder, key serializer and bounded store configuration
// shared by every repository it builds.
type Container struct {
	logger        logging.Logger
	metrics       metrics.Recorder
	keySerializer cache.KeySerializer
	config        cache.Config
	interval      time.Duration
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every wrapper.
func WithLogger(l logging.Logger) Option {
	return func(c *Container) {
		c.logger = logging.OrNop(l)
	}
}

// WithMetrics sets the recorder handed to every wrapper.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Container) {
		c.metrics = metrics.OrNop(r)
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(c *Container) {
		if s != nil {
			c.keySerializer = s
		}
	}
}

// WithFallbackInterval sets the pause between background passes of auto-recache repositories.
func WithFallbackInterval(d time.Duration) Option {
	return func(c *Container) {
		c.interval = d
	}
}

// NewContainer validates config and creates a container.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		logger:        logging.Nop{},
		metrics:       metrics.Nop{},
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        config,
		interval:      fallback.DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewContainerWithDefaults creates a container using cache.DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

func (c *Container) Logger() logging.Logger {
	return c.logger
}

func (c *Container) Metrics() metrics.Recorder {
	return c.metrics
}

func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the bounded store configuration.
func (c *Container) Config() cache.Config {
	return c.config
}

// Since Go methods cannot have type parameters, the factories below are package-level
// functions taking the container. Each repository is named after name, which also
// namespaces its bounded store.

// NewBoundedStore creates a bounded store namespaced by name.
func NewBoundedStore[K comparable, V any](c *Container, name string) (cache.KVCache[K, V], error) {
	cfg := c.config
	if name != "" {
		cfg.Namespace = name
	}
	return cache.NewBoundedWithSerializer[K, V](cfg, c.keySerializer)
}

// NewReadThroughCRUD wraps origin in a read-through repository over a bounded store.
func NewReadThroughCRUD[ID comparable, V any, In any](ctx context.Context, c *Container, name string, origin repos.CRUDRepo[ID, V, In], idOf repos.IDFunc[ID, V]) (*repositorycache.CRUDCacheRepo[ID, V, In], error) {
	store, err := NewBoundedStore[ID, V](c, name)
	if err != nil {
		return nil, err
	}
	return repositorycache.NewCRUD(ctx, origin, store, idOf,
		repositorycache.WithName(name),
		repositorycache.WithLogger(c.logger),
		repositorycache.WithMetrics(c.metrics),
		repositorycache.WithKeySerializer(c.keySerializer),
	), nil
}

// NewAutoRecacheCRUD wraps origin in an auto-recache repository. The store is an
// unbounded cache.Map, so the last good copy survives as long as the origin is down.
func NewAutoRecacheCRUD[ID comparable, V any](ctx context.Context, c *Container, name string, origin repos.ReadCRUDRepo[ID, V], idOf repos.IDFunc[ID, V], opts ...fallback.Option) *fallback.AutoRecacheCRUDRepo[ID, V] {
	base := []fallback.Option{
		fallback.WithName(name),
		fallback.WithInterval(c.interval),
		fallback.WithLogger(c.logger),
		fallback.WithMetrics(c.metrics),
	}
	return fallback.NewCRUD(ctx, origin, cache.NewMap[ID, V](), idOf, append(base, opts...)...)
}

// NewMirrorCRUD wraps origin in a full mirror over a cache.Map.
func NewMirrorCRUD[ID comparable, V any, In any](ctx context.Context, c *Container, name string, origin repos.CRUDRepo[ID, V, In], idOf repos.IDFunc[ID, V]) *full.CRUDRepo[ID, V, In] {
	return full.NewCRUD(ctx, origin, cache.NewMap[ID, V](), idOf,
		full.WithName(name),
		full.WithLogger(c.logger),
		full.WithMetrics(c.metrics),
	)
}
