// Package cache implements a replay cache for test fixture entities.
//
// # Overview
//
// Test suites spend much of their time creating the same fixtures over and
// over. The replay cache records the identity of every fixture it creates and,
// on later test executions, hands back those same persisted entities instead
// of creating new ones:
//
//   - Registry: process scoped entry point keyed by entity type name
//   - EntityCache: decides per call whether the arguments are cacheable
//   - KeyedPartition: optional secondary dimension, such as the active locale
//   - RecordCache: time ordered entries per (overrides, traits) key
//   - ReplayIterator: snapshot isolated cursor used to replay entries
//
// # Cycles
//
// A cycle is one logical sequence of fetches, usually one test execution.
// Within a cycle the Nth fetch for a key returns the Nth replayable entry in
// creation order; once those run out every further fetch creates a new
// entity. Entities created during a cycle become replayable in the next one:
//
//	registry, err := cache.NewRegistry(cfg, cache.WithCatalog(catalog))
//	if err != nil {
//		return err
//	}
//
//	user, err := cache.Fetch(ctx, registry, "user", overrides, nil, createUser)
//	// ... test body ...
//	registry.ResetAllCycles()
//
// ResetAll forgets every entry, for example between unrelated suites.
//
// # Expiry and Resolution
//
// Entries older than Config.Timeout are skipped, as are entries created after
// the current time. Replayed identifiers are resolved against the live store;
// an identifier that no longer resolves is skipped for the rest of the cycle
// but kept in the list.
//
// # Cacheability
//
// Only persisted entity types are cached. A call that overrides a relation
// field (a belongs-to association, its foreign key column, or any other
// relation) always creates a new entity, because associating a supplied
// entity mutates it as a side effect.
//
// # Keys
//
// Overrides are canonicalized by field name and traits alphabetically, so
// equal argument sets share a partition regardless of order. Values are
// serialized with reflection; function values are keyed by pointer and are
// therefore only stable within a single process.
//
// # Concurrency
//
// The cache is designed for one sequence of fetches at a time and holds no
// per key locks. Creation itself runs through an Executor; the default one
// bounds each creation with Config.CreateTimeout on a separate goroutine.
package cache
