// Package codec turns cached values into bytes for stores that only hold byte slices,
// such as redis hashes and bigcache.
package codec

// Codec encodes and decodes values of V.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Entry is what byte stores persist for every key: the original key next to the value,
// so enumeration does not depend on parsing the store's string keys back.
type Entry[K comparable, V any] struct {
	Key   K `msgpack:"k" cbor:"1,keyasint"`
	Value V `msgpack:"v" cbor:"2,keyasint"`
}
