package cache

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/text/language"
)

// KeyFunc computes the secondary partition key for the current call.
// The returned value must be comparable.
type KeyFunc func() any

// LocaleKey partitions fixtures by the locale returned by current, so that
// fixtures created under one locale are never replayed under another.
func LocaleKey(current func() language.Tag) KeyFunc {
	return func() any {
		return current().String()
	}
}

// KeyedPartition fans fetches out to one RecordCache per partition key.
type KeyedPartition struct {
	entityType EntityType
	env        *environment
	keyFn      KeyFunc
	partitions map[any]*RecordCache
}

func newKeyedPartition(et EntityType, env *environment, keyFn KeyFunc) *KeyedPartition {
	return &KeyedPartition{
		entityType: et,
		env:        env,
		keyFn:      keyFn,
		partitions: make(map[any]*RecordCache),
	}
}

// FetchFor evaluates the key function once and delegates to the matching
// RecordCache, creating it on first use.
func (p *KeyedPartition) FetchFor(ctx context.Context, overrides Overrides, traits []string, create CreateFn) (any, error) {
	cache, err := p.partitionFor(p.keyFn())
	if err != nil {
		return nil, err
	}
	return cache.FetchFor(ctx, overrides, traits, create)
}

// Partition returns the RecordCache for key, if one exists.
func (p *KeyedPartition) Partition(key any) (*RecordCache, bool) {
	cache, ok := p.partitions[key]
	return cache, ok
}

// Len returns the number of partitions created so far.
func (p *KeyedPartition) Len() int {
	return len(p.partitions)
}

func (p *KeyedPartition) partitionFor(key any) (*RecordCache, error) {
	if key != nil && !reflect.ValueOf(key).Comparable() {
		return nil, &ConfigError{
			Field:   "PartitionKey",
			Message: fmt.Sprintf("returned non comparable %T", key),
		}
	}

	cache, ok := p.partitions[key]
	if !ok {
		cache = newRecordCache(p.entityType, p.env)
		p.partitions[key] = cache
	}
	return cache, nil
}

// ResetCycle rewinds the cursors of every partition.
func (p *KeyedPartition) ResetCycle() {
	for _, cache := range p.partitions {
		cache.ResetCycle()
	}
}

// ResetAll discards the entries of every partition.
func (p *KeyedPartition) ResetAll() {
	for _, cache := range p.partitions {
		cache.ResetAll()
	}
}
