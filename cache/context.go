package cache

import "context"

type withoutCachingKey struct{}

// WithoutCaching marks ctx so that factory layers skip the replay cache for
// every call made with it. Creation functions run under such a context so
// fixtures created while building another fixture are never cached.
func WithoutCaching(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if CachingDisabled(ctx) {
		return ctx
	}
	return context.WithValue(ctx, withoutCachingKey{}, true)
}

// CachingDisabled reports whether ctx was marked with WithoutCaching.
func CachingDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	disabled, _ := ctx.Value(withoutCachingKey{}).(bool)
	return disabled
}
