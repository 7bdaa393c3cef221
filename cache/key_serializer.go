package cache

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter between a namespace and an encoded key.
const KeySeparator = "::"

// KeySerializer turns a repository key into a stable string. String-keyed backends
// (sturdyc, redis, bigcache) and singleflight groups use it to address entries.
type KeySerializer interface {
	SerializeKey(namespace string, key any) string
}

// defaultKeySerializer walks the key with reflection and never calls Interface on it,
// so unexported struct fields take part in the encoding as well.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates the reflection based serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey encodes key and prefixes it with namespace when one is given.
// Top level strings are kept verbatim so simple keys stay readable in external stores.
func (s defaultKeySerializer) SerializeKey(namespace string, key any) string {
	encoded := s.encode(reflect.ValueOf(key), true)
	if namespace == "" {
		return encoded
	}
	return namespace + KeySeparator + encoded
}

func (s defaultKeySerializer) encode(v reflect.Value, top bool) string {
	if !v.IsValid() {
		return "nil"
	}

	switch v.Kind() {
	case reflect.String:
		if top {
			return v.String()
		}
		return strconv.Quote(v.String())
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Complex64, reflect.Complex128:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 128)
	case reflect.Interface:
		if v.IsNil() {
			return "nil"
		}
		return s.encode(v.Elem(), top)
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan:
		// pointer keys compare by identity, so the address is the key
		if v.IsNil() {
			return "nil"
		}
		return fmt.Sprintf("%s:%#x", v.Kind(), v.Pointer())
	case reflect.Array:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = s.encode(v.Index(i), false)
		}
		return fmt.Sprintf("array[%d]:{%s}", v.Len(), strings.Join(parts, ","))
	case reflect.Struct:
		t := v.Type()
		parts := make([]string, t.NumField())
		for i := range parts {
			parts[i] = t.Field(i).Name + ":" + s.encode(v.Field(i), false)
		}
		return "struct:{" + strings.Join(parts, ",") + "}"
	default:
		// slices, maps and funcs cannot be map keys; keep something printable anyway
		return fmt.Sprintf("%s:%v", v.Type(), v)
	}
}
