// Package bigcachestore is an in-process cache store on allegro/bigcache, keeping entries
// off the Go heap as codec encoded bytes.
//
// bigcache drops entries older than LifeWindow and evicts under HardMaxCacheSizeMB, so the
// store suits read-through and auto-recache wrappers, not full mirrors.
package bigcachestore

import (
	"context"
	"errors"
	"reflect"
	"time"

	bc "github.com/allegro/bigcache/v3"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/codec"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/stores"
)

// Config configures the underlying bigcache instance.
type Config struct {
	// LifeWindow is how long an entry lives. Required.
	LifeWindow time.Duration
	// CleanWindow is the interval of the expired entry sweep. Zero disables it.
	CleanWindow time.Duration
	// Shards must be a power of two. Zero keeps the bigcache default.
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	// HardMaxCacheSizeMB caps memory use. Zero means unlimited.
	HardMaxCacheSizeMB int
}

// DefaultConfig returns a Config with a ten minute life window.
func DefaultConfig() Config {
	return Config{LifeWindow: 10 * time.Minute, CleanWindow: time.Minute}
}

// Validate checks the configuration. Failures carry one field error per invalid field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.LifeWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.CleanWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.Shards, validation.Min(0), validation.By(powerOfTwo)),
		validation.Field(&c.MaxEntriesInWindow, validation.Min(0)),
		validation.Field(&c.MaxEntrySize, validation.Min(0)),
		validation.Field(&c.HardMaxCacheSizeMB, validation.Min(0)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid bigcache store config")
	}
	return nil
}

func powerOfTwo(value any) error {
	n, _ := value.(int)
	if n > 0 && n&(n-1) != 0 {
		return errors.New("must be a power of two")
	}
	return nil
}

func (c Config) toBigcache() bc.Config {
	conf := bc.DefaultConfig(c.LifeWindow)
	conf.CleanWindow = c.CleanWindow
	if c.Shards > 0 {
		conf.Shards = c.Shards
	}
	if c.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = c.MaxEntriesInWindow
	}
	if c.MaxEntrySize > 0 {
		conf.MaxEntrySize = c.MaxEntrySize
	}
	conf.HardMaxCacheSize = c.HardMaxCacheSizeMB
	return conf
}

// Store is a cache.KVCache over a bigcache instance it owns.
type Store[K comparable, V any] struct {
	c          *bc.BigCache
	codec      codec.Codec[codec.Entry[K, V]]
	serializer cache.KeySerializer
	equal      func(a, b V) bool
}

var _ cache.KVCache[string, int] = (*Store[string, int])(nil)

// New validates cfg and creates an empty store. The sweep goroutine of bigcache stops when
// ctx ends or Close is called.
func New[K comparable, V any](ctx context.Context, cfg Config, c codec.Codec[codec.Entry[K, V]]) (*Store[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, goerrors.New("bigcache store requires a codec", goerrors.CategoryValidation)
	}
	big, err := bc.New(ctx, cfg.toBigcache())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create bigcache failed")
	}
	return &Store[K, V]{
		c:          big,
		codec:      c,
		serializer: cache.NewDefaultKeySerializer(),
		equal:      func(a, b V) bool { return reflect.DeepEqual(a, b) },
	}, nil
}

func (s *Store[K, V]) keyOf(k K) string {
	return s.serializer.SerializeKey("", k)
}

func (s *Store[K, V]) Get(_ context.Context, k K) (V, bool, error) {
	var zero V
	b, err := s.c.Get(s.keyOf(k))
	if errors.Is(err, bc.ErrEntryNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, goerrors.Wrap(err, goerrors.CategoryInternal, "bigcache get failed")
	}
	e, err := s.codec.Decode(b)
	if err != nil {
		return zero, false, goerrors.Wrap(err, goerrors.CategoryInternal, "decode cached entry failed")
	}
	return e.Value, true, nil
}

func (s *Store[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	_, ok, err := s.Get(ctx, k)
	return ok, err
}

func (s *Store[K, V]) Count(context.Context) (int64, error) {
	return int64(s.c.Len()), nil
}

// fields walks the cache with its iterator. Entries removed while iterating are skipped.
func (s *Store[K, V]) fields() ([]stores.Field[K, V], error) {
	out := make([]stores.Field[K, V], 0, s.c.Len())
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		e, err := s.codec.Decode(info.Value())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "decode cached entry failed").
				WithMetadata(map[string]any{"key": info.Key()})
		}
		out = append(out, stores.Field[K, V]{Name: info.Key(), Entry: e})
	}
	stores.Sort(out)
	return out, nil
}

func (s *Store[K, V]) Values(_ context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	fields, err := s.fields()
	if err != nil {
		return pagination.Result[V]{}, err
	}
	return stores.Values(fields, p, reversed), nil
}

func (s *Store[K, V]) Keys(_ context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	fields, err := s.fields()
	if err != nil {
		return pagination.Result[K]{}, err
	}
	return stores.Keys(fields, p, reversed), nil
}

func (s *Store[K, V]) KeysByValue(_ context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	fields, err := s.fields()
	if err != nil {
		return pagination.Result[K]{}, err
	}
	return stores.KeysByValue(fields, v, s.equal, p, reversed), nil
}

func (s *Store[K, V]) GetAll(context.Context) (map[K]V, error) {
	fields, err := s.fields()
	if err != nil {
		return nil, err
	}
	return stores.ToMap(fields), nil
}

func (s *Store[K, V]) Set(_ context.Context, toSet map[K]V) error {
	for k, v := range toSet {
		b, err := s.codec.Encode(codec.Entry[K, V]{Key: k, Value: v})
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "encode cache entry failed")
		}
		if err := s.c.Set(s.keyOf(k), b); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "bigcache set failed")
		}
	}
	return nil
}

func (s *Store[K, V]) Unset(_ context.Context, keys []K) error {
	for _, k := range keys {
		if err := s.c.Delete(s.keyOf(k)); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "bigcache delete failed")
		}
	}
	return nil
}

func (s *Store[K, V]) Clear(context.Context) error {
	return s.c.Reset()
}

// Close stops bigcache's background sweep.
func (s *Store[K, V]) Close() error {
	return s.c.Close()
}
