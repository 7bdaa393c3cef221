// Package redisstore is a cache store kept in a single redis hash, so several processes
// can share one mirror of an origin.
//
// Every entry is a hash field named by the key serializer and holding the codec encoded
// key and value. Enumeration reads the whole hash and orders it by field name; keep that
// in mind for large caches.
package redisstore

import (
	"context"
	"errors"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/codec"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/stores"
)

// Config configures a Store.
type Config struct {
	Client goredis.UniversalClient
	// Hash is the redis key of the hash holding the entries.
	Hash string
	// CloseClient makes Close close Client. Set it only when the store owns the client.
	CloseClient bool
}

// Store is a cache.KVCache over a redis hash.
type Store[K comparable, V any] struct {
	rdb         goredis.UniversalClient
	hash        string
	closeClient bool
	codec       codec.Codec[codec.Entry[K, V]]
	serializer  cache.KeySerializer
	equal       func(a, b V) bool
}

var _ cache.KVCache[string, int] = (*Store[string, int])(nil)

// Option configures a Store.
type Option[K comparable, V any] func(*Store[K, V])

// WithKeySerializer replaces the default key serializer. Every process sharing the hash
// must use the same one.
func WithKeySerializer[K comparable, V any](s cache.KeySerializer) Option[K, V] {
	return func(st *Store[K, V]) {
		if s != nil {
			st.serializer = s
		}
	}
}

// WithEqual sets the value equality used by KeysByValue. The default is reflect.DeepEqual.
func WithEqual[K comparable, V any](equal func(a, b V) bool) Option[K, V] {
	return func(st *Store[K, V]) {
		if equal != nil {
			st.equal = equal
		}
	}
}

// New creates a store over cfg.Hash, encoding entries with c.
func New[K comparable, V any](cfg Config, c codec.Codec[codec.Entry[K, V]], opts ...Option[K, V]) (*Store[K, V], error) {
	if cfg.Client == nil {
		return nil, goerrors.New("redis store requires a client", goerrors.CategoryValidation)
	}
	if cfg.Hash == "" {
		return nil, goerrors.New("redis store requires a hash key", goerrors.CategoryValidation)
	}
	if c == nil {
		return nil, goerrors.New("redis store requires a codec", goerrors.CategoryValidation)
	}

	s := &Store[K, V]{
		rdb:         cfg.Client,
		hash:        cfg.Hash,
		closeClient: cfg.CloseClient,
		codec:       c,
		serializer:  cache.NewDefaultKeySerializer(),
		equal:       func(a, b V) bool { return reflect.DeepEqual(a, b) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store[K, V]) field(k K) string {
	return s.serializer.SerializeKey("", k)
}

func (s *Store[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	var zero V
	b, err := s.rdb.HGet(ctx, s.hash, s.field(k)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, goerrors.Wrap(err, goerrors.CategoryExternal, "redis HGET failed")
	}
	e, err := s.codec.Decode(b)
	if err != nil {
		return zero, false, goerrors.Wrap(err, goerrors.CategoryInternal, "decode cached entry failed")
	}
	return e.Value, true, nil
}

func (s *Store[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	ok, err := s.rdb.HExists(ctx, s.hash, s.field(k)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryExternal, "redis HEXISTS failed")
	}
	return ok, nil
}

func (s *Store[K, V]) Count(ctx context.Context) (int64, error) {
	n, err := s.rdb.HLen(ctx, s.hash).Result()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "redis HLEN failed")
	}
	return n, nil
}

// fields reads and decodes the whole hash, ordered by field name.
func (s *Store[K, V]) fields(ctx context.Context) ([]stores.Field[K, V], error) {
	raw, err := s.rdb.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "redis HGETALL failed")
	}
	out := make([]stores.Field[K, V], 0, len(raw))
	for name, b := range raw {
		e, err := s.codec.Decode([]byte(b))
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "decode cached entry failed").
				WithMetadata(map[string]any{"field": name})
		}
		out = append(out, stores.Field[K, V]{Name: name, Entry: e})
	}
	stores.Sort(out)
	return out, nil
}

func (s *Store[K, V]) Values(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[V], error) {
	fields, err := s.fields(ctx)
	if err != nil {
		return pagination.Result[V]{}, err
	}
	return stores.Values(fields, p, reversed), nil
}

func (s *Store[K, V]) Keys(ctx context.Context, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	fields, err := s.fields(ctx)
	if err != nil {
		return pagination.Result[K]{}, err
	}
	return stores.Keys(fields, p, reversed), nil
}

func (s *Store[K, V]) KeysByValue(ctx context.Context, v V, p pagination.Pagination, reversed bool) (pagination.Result[K], error) {
	fields, err := s.fields(ctx)
	if err != nil {
		return pagination.Result[K]{}, err
	}
	return stores.KeysByValue(fields, v, s.equal, p, reversed), nil
}

func (s *Store[K, V]) GetAll(ctx context.Context) (map[K]V, error) {
	fields, err := s.fields(ctx)
	if err != nil {
		return nil, err
	}
	return stores.ToMap(fields), nil
}

// Set writes every entry with a single HSET.
func (s *Store[K, V]) Set(ctx context.Context, toSet map[K]V) error {
	if len(toSet) == 0 {
		return nil
	}
	values := make(map[string]any, len(toSet))
	for k, v := range toSet {
		b, err := s.codec.Encode(codec.Entry[K, V]{Key: k, Value: v})
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "encode cache entry failed")
		}
		values[s.field(k)] = b
	}
	if err := s.rdb.HSet(ctx, s.hash, values).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "redis HSET failed")
	}
	return nil
}

func (s *Store[K, V]) Unset(ctx context.Context, keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = s.field(k)
	}
	if err := s.rdb.HDel(ctx, s.hash, fields...).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "redis HDEL failed")
	}
	return nil
}

// Clear deletes the hash.
func (s *Store[K, V]) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.hash).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "redis DEL failed")
	}
	return nil
}

// Close closes the client when the store owns it. Repeated calls are no-ops.
func (s *Store[K, V]) Close() error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
