package cache

import (
	"reflect"
	"time"

	"github.com/goliatone/go-repository-mirror/internal/cacheinfra"
)

// Config exposes the bounded store options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
	// Namespace prefixes every encoded key, so several stores can share one process.
	Namespace string
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewBounded constructs a capacity bounded, TTL based store with the default key serializer.
// Expired or evicted entries read as misses, so use it behind read-through wrappers.
func NewBounded[K comparable, V any](cfg Config) (KVCache[K, V], error) {
	return NewBoundedWithSerializer[K, V](cfg, NewDefaultKeySerializer())
}

// NewBoundedWithSerializer is NewBounded with a caller supplied key serializer.
func NewBoundedWithSerializer[K comparable, V any](cfg Config, serializer KeySerializer) (KVCache[K, V], error) {
	store, err := cacheinfra.NewSturdycStore[K, V](
		cfg.toInternal(),
		serializer,
		cfg.Namespace,
		func(a, b V) bool { return reflect.DeepEqual(a, b) },
	)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
