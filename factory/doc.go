// Package factory defines fixture factories that create records through the
// replay cache.
//
// A factory builds a record from defaults, applies traits in call order and
// then overrides, and persists the result. Create consults the cache first:
//
//	users := factory.New(registry, "user", buildUser, repositorycache.Persister(userRepo)).
//		Trait("admin", func(u *User) *User { u.Role = "admin"; return u })
//
//	admin, err := users.Create(ctx, map[string]any{"email": "a@example.com"}, "admin")
//
// Records created while building another record, such as the author a post
// factory creates for its post, are never cached: build and persist run under
// a context marked with cache.WithoutCaching.
package factory
