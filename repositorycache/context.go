package repositorycache

import "context"

type refreshContextKey struct{}

// WithRefresh marks ctx so point lookups skip the cache, read the origin and store
// the fresh value.
func WithRefresh(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, refreshContextKey{}, true)
}

func refreshRequested(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(refreshContextKey{}).(bool)
	return v
}
