package cache

import (
	"context"
	"strings"
)

// fieldSet holds field names folded so that "author_id", "AuthorID" and
// "authorId" are the same member.
type fieldSet map[string]struct{}

func newFieldSet(names ...string) fieldSet {
	s := make(fieldSet, len(names))
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s fieldSet) add(name string) {
	s[foldFieldName(name)] = struct{}{}
}

func (s fieldSet) has(name string) bool {
	_, ok := s[foldFieldName(name)]
	return ok
}

func foldFieldName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// EntityCache decides, per entity type, whether a call may be cached and
// hands cacheable calls to its record store.
type EntityCache struct {
	entityType EntityType
	cacheable  fieldSet
	common     fieldSet
	uncommon   fieldSet
	store      recordStore
	env        *environment
}

func newEntityCache(et EntityType, classes FieldClasses, env *environment, keyFn KeyFunc) *EntityCache {
	ec := &EntityCache{
		entityType: et,
		cacheable:  newFieldSet(),
		common:     newFieldSet(classes.Common...),
		uncommon:   newFieldSet(classes.Uncommon...),
		env:        env,
	}
	if keyFn != nil {
		ec.store = newKeyedPartition(et, env, keyFn)
	} else {
		ec.store = newRecordCache(et, env)
	}
	return ec
}

// EntityType returns the descriptor this cache was built for.
func (c *EntityCache) EntityType() EntityType {
	return c.entityType
}

// Fetch replays or creates an entity. Non persisted types and calls that
// override a relation field skip the record store and always create: a
// supplied related entity gets associated as a side effect, so the fixture
// would differ per call. Field names match regardless of case and
// underscores. Every creation runs through the executor.
func (c *EntityCache) Fetch(ctx context.Context, overrides Overrides, traits []string, create CreateFn) (any, error) {
	if !c.entityType.Persisted {
		c.env.metrics.RecordBypass(c.entityType.Name, BypassNotPersisted)
		return c.env.executor.Execute(ctx, create)
	}

	for _, ov := range overrides {
		if !c.isCacheableField(ov.Field) {
			c.env.metrics.RecordBypass(c.entityType.Name, BypassRelation)
			c.env.logger.Debug("relation override, bypassing cache", "entity_type", c.entityType.Name, "field", ov.Field)
			return c.env.executor.Execute(ctx, create)
		}
	}

	return c.store.FetchFor(ctx, overrides, traits, create)
}

// isCacheableField checks the sets in order of likelihood: repeat calls hit
// the memoized cacheable set, belongs-to style relations are the usual
// overrides, everything else is rare.
func (c *EntityCache) isCacheableField(field string) bool {
	switch {
	case c.cacheable.has(field):
		return true
	case c.common.has(field):
		return false
	case c.uncommon.has(field):
		return false
	}
	c.cacheable.add(field)
	return true
}

// Reset discards every recorded entry.
func (c *EntityCache) Reset() {
	c.store.ResetAll()
}

// ResetCycle rewinds replay cursors without discarding entries.
func (c *EntityCache) ResetCycle() {
	c.store.ResetCycle()
}
