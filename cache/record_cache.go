package cache

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
)

// environment carries the collaborators shared by every cache in a registry.
type environment struct {
	resolver   Resolver
	executor   Executor
	clock      Clock
	logger     *log.Logger
	metrics    Metrics
	serializer KeySerializer
	timeout    time.Duration
}

// recordStore is implemented by RecordCache and KeyedPartition.
type recordStore interface {
	FetchFor(ctx context.Context, overrides Overrides, traits []string, create CreateFn) (any, error)
	ResetCycle()
	ResetAll()
}

// RecordCache keeps, per cache key, the creation-ordered entries of one entity
// type and a replay cursor over a snapshot of them.
type RecordCache struct {
	entityType EntityType
	env        *environment
	entries    map[string][]Entry
	cursors    map[string]*ReplayIterator[Entry]
}

func newRecordCache(et EntityType, env *environment) *RecordCache {
	return &RecordCache{
		entityType: et,
		env:        env,
		entries:    make(map[string][]Entry),
		cursors:    make(map[string]*ReplayIterator[Entry]),
	}
}

// FetchFor serializes overrides and traits into a key and calls Fetch.
func (c *RecordCache) FetchFor(ctx context.Context, overrides Overrides, traits []string, create CreateFn) (any, error) {
	return c.Fetch(ctx, c.env.serializer.SerializeKey(overrides, traits), create)
}

// Fetch replays the next usable entry for key or creates a new entity.
func (c *RecordCache) Fetch(ctx context.Context, key string, create CreateFn) (any, error) {
	return c.FetchAt(ctx, key, c.env.clock.Now(), create)
}

// FetchAt is Fetch evaluated at the given instant.
//
// Entries created at or before now-timeout are skipped for the rest of the
// cycle. Entries created after now end the scan without being consumed.
// Entries whose entity no longer resolves are skipped for the rest of the
// cycle. When nothing is replayable the entity is created and recorded at
// now; the new entry only becomes visible after the next ResetCycle.
func (c *RecordCache) FetchAt(ctx context.Context, key string, now time.Time, create CreateFn) (any, error) {
	cursor := c.cursorFor(key)

	boundary := now.Add(-c.env.timeout)
	before := cursor.Position()
	cursor.FastForward(func(e Entry) bool {
		return e.CreatedAt.After(boundary)
	})
	if skipped := cursor.Position() - before; skipped > 0 {
		c.env.metrics.RecordExpired(c.entityType.Name, skipped)
		c.env.logger.Debug("skipped expired entries", "entity_type", c.entityType.Name, "key", key, "count", skipped)
	}

	for {
		entry, ok := cursor.Peek()
		if !ok || entry.CreatedAt.After(now) {
			break
		}
		cursor.Advance()

		entity, found, err := c.env.resolver.Resolve(ctx, c.entityType, entry.Identifier)
		if err != nil {
			return nil, err
		}
		if found {
			c.env.metrics.RecordHit(c.entityType.Name)
			c.env.logger.Debug("replayed fixture", "entity_type", c.entityType.Name, "key", key, "identifier", entry.Identifier)
			return entity, nil
		}

		c.env.metrics.RecordStale(c.entityType.Name)
		c.env.logger.Debug("cached fixture no longer exists", "entity_type", c.entityType.Name, "key", key, "identifier", entry.Identifier)
	}

	return c.createAndRecord(ctx, key, now, create)
}

func (c *RecordCache) createAndRecord(ctx context.Context, key string, now time.Time, create CreateFn) (any, error) {
	c.env.metrics.RecordMiss(c.entityType.Name)

	started := time.Now()
	entity, err := c.env.executor.Execute(ctx, create)
	c.env.metrics.RecordCreateDuration(c.entityType.Name, time.Since(started))
	if err != nil {
		return nil, err
	}

	id, err := c.env.resolver.IdentifierOf(entity)
	if err != nil {
		c.env.logger.Warn("created fixture has no identifier, not caching", "entity_type", c.entityType.Name, "key", key, "error", err)
		return entity, nil
	}

	entry := Entry{CreatedAt: now, Identifier: id}
	c.entries[key] = insertEntry(c.entries[key], entry)
	c.env.logger.Debug("cached new fixture", "entity_type", c.entityType.Name, "key", key, "identifier", id)

	return entity, nil
}

// cursorFor returns the replay cursor for key, snapshotting the entry list on
// first access since the last cycle reset.
func (c *RecordCache) cursorFor(key string) *ReplayIterator[Entry] {
	cursor, ok := c.cursors[key]
	if !ok {
		cursor = NewReplayIterator(c.entries[key])
		c.cursors[key] = cursor
	}
	return cursor
}

// ResetCycle drops every replay cursor. Entries are kept.
func (c *RecordCache) ResetCycle() {
	clear(c.cursors)
}

// ResetAll drops every entry and cursor.
func (c *RecordCache) ResetAll() {
	clear(c.entries)
	clear(c.cursors)
}

// Len returns the number of entries recorded for key.
func (c *RecordCache) Len(key string) int {
	return len(c.entries[key])
}

// Entries returns a copy of the entries recorded for key.
func (c *RecordCache) Entries(key string) []Entry {
	return append([]Entry(nil), c.entries[key]...)
}

// Keys returns every key with recorded entries, sorted.
func (c *RecordCache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
