// Package naming derives default wrapper names from value types.
package naming

import (
	"reflect"
	"strings"
	"unicode"
)

// TypeName returns the snake_case name of V, used as the default wrapper name.
// Pointer, slice and generic decorations are dropped so the result is usable as a
// metric label and a key namespace.
func TypeName[V any]() string {
	t := reflect.TypeOf((*V)(nil)).Elem()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return t.Kind().String()
	}
	return ToSnake(name)
}

// ToSnake converts s to snake_case. Runs of capitals are kept together
// ("HTTPServer" becomes "http_server") and any other punctuation becomes a single underscore.
func ToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
			b.WriteByte('_')
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sep()
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			sep()
		}
	}

	return strings.Trim(b.String(), "_")
}
