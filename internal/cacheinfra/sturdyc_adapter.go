package cacheinfra

import (
	"context"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-repository-mirror/pagination"
)

// Config holds the configuration for the sturdyc backed store.
type Config struct {
	// Capacity defines the maximum number of entries that the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for stored entries. Expired entries read as missing,
	// so a store with a short TTL is only suitable behind a read-through wrapper.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to the sturdyc.New constructor.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
// Failures are reported as a go-errors validation error carrying one entry per field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid sturdyc store config")
	}
	return nil
}

// KeyEncoder turns a key into the string sturdyc addresses entries with.
type KeyEncoder interface {
	SerializeKey(namespace string, key any) string
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// SturdycStore is a bounded, TTL based key-value cache store on top of a sturdyc client.
// Entries keep their original key next to the value so enumeration does not depend on
// decoding the string keys. Enumeration order is the lexical order of the encoded keys.
type SturdycStore[K comparable, V any] struct {
	client    *sturdyc.Client[entry[K, V]]
	encoder   KeyEncoder
	namespace string
	equal     func(a, b V) bool
}

// NewSturdycStore validates cfg and creates an empty store. All keys are prefixed with
// namespace, and equal backs KeysByValue lookups.
func NewSturdycStore[K comparable, V any](cfg Config, encoder KeyEncoder, namespace string, equal func(a, b V) bool) (*SturdycStore[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if encoder == nil {
		return nil, goerrors.New("sturdyc store requires a key encoder", goerrors.CategoryValidation)
	}
	if equal == nil {
		return nil, goerrors.New("sturdyc store requires an equality func", goerrors.CategoryValidation)
	}

	client := sturdyc.New[entry[K, V]](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore[K, V]{
		client:    client,
		encoder:   encoder,
		namespace: namespace,
		equal:     equal,
	}, nil
}

func (s *SturdycStore[K, V]) keyOf(k K) string {
	return s.encoder.SerializeKey(s.namespace, k)
}

// entries returns the live entries sorted by encoded key.
func (s *SturdycStore[K, V]) entries() []entry[K, V] {
	keys := s.client.ScanKeys()
	sort.Strings(keys)
	out := make([]entry[K, V], 0, len(keys))
	for _, key := range keys {
		if e, ok := s.client.Get(key); ok {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the value stored for k.
func (s *SturdycStore[K, V]) Get(_ context.Context, k K) (V, bool, error) {
	e, ok := s.client.Get(s.keyOf(k))
	return e.value, ok, nil
}

// Contains reports whether k is stored.
func (s *SturdycStore[K, V]) Contains(_ context.Context, k K) (bool, error) {
	_, ok := s.client.Get(s.keyOf(k))
	return ok, nil
}

// Count returns the number of stored entries.
func (s *SturdycStore[K, V]) Count(_ context.Context) (int64, error) {
	return int64(len(s.entries())), nil
}

// Values returns a page of values.
func (s *SturdycStore[K, V]) Values(_ context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	page := pagination.Slice(s.entries(), p, reversed)
	return pagination.Map(page, func(e entry[K, V]) V { return e.value }), nil
}

// Keys returns a page of keys.
func (s *SturdycStore[K, V]) Keys(_ context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	page := pagination.Slice(s.entries(), p, reversed)
	return pagination.Map(page, func(e entry[K, V]) K { return e.key }), nil
}

// KeysByValue returns a page of the keys whose value equals v.
func (s *SturdycStore[K, V]) KeysByValue(_ context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	matching := make([]K, 0)
	for _, e := range s.entries() {
		if s.equal(e.value, v) {
			matching = append(matching, e.key)
		}
	}
	return pagination.Slice(matching, p, reversed), nil
}

// GetAll returns every live entry.
func (s *SturdycStore[K, V]) GetAll(_ context.Context) (map[K]V, error) {
	all := s.entries()
	out := make(map[K]V, len(all))
	for _, e := range all {
		out[e.key] = e.value
	}
	return out, nil
}

// Set stores every entry of toSet.
func (s *SturdycStore[K, V]) Set(_ context.Context, toSet map[K]V) error {
	for k, v := range toSet {
		s.client.Set(s.keyOf(k), entry[K, V]{key: k, value: v})
	}
	return nil
}

// Unset removes keys.
func (s *SturdycStore[K, V]) Unset(_ context.Context, keys []K) error {
	for _, k := range keys {
		s.client.Delete(s.keyOf(k))
	}
	return nil
}

// Clear removes every entry of the store.
func (s *SturdycStore[K, V]) Clear(_ context.Context) error {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}
