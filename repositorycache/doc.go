// Package repositorycache connects the fixture replay cache to models stored
// through go-repository-bun.
//
// # Overview
//
// The cache package needs to know, per entity type, whether records are
// persisted, which fields are relations, how to look a replayed identifier up
// again and how to get an identifier out of a record. Catalog answers all four
// from the bun schema and the registered repositories:
//
//	catalog := repositorycache.NewCatalog(db)
//	if err := repositorycache.Register(catalog, "user", userRepo); err != nil {
//		return err
//	}
//
//	registry, err := cache.NewRegistry(cfg, cache.WithCatalog(catalog))
//
// # Relation Fields
//
// Belongs-to relations are reported as common fields, under the Go field
// name, the bun relation name, its snake form and the foreign key columns, so
// an override of either "Author", "author" or "author_id" bypasses the cache.
// Has-one, has-many and many-to-many relations are reported as uncommon.
//
// # Resolution
//
// Replayed identifiers are resolved with Repository.GetByID. A missing row and
// any lookup error other than context cancellation count as not found: the
// entry is skipped and the next one is tried.
//
// # Connection Isolation
//
// ConnExecutor runs every creation on a dedicated connection taken from the
// pool, with a statement timeout on PostgreSQL. Persister picks that
// connection up from the context so the insert runs on it:
//
//	exec := repositorycache.NewConnExecutor(db, cache.NewBoundedExecutor(20*time.Second, nil),
//		repositorycache.WithStatementTimeout(20*time.Second))
//
//	users := factory.New(registry, "user", buildUser, repositorycache.Persister(userRepo))
package repositorycache
