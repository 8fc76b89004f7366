package testsupport

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-fixture-cache/cache"
)

// Interface assertion to ensure MemoryCatalog satisfies cache.Catalog
var _ cache.Catalog = (*MemoryCatalog)(nil)

// ErrNotStored is returned by IdentifierOf for entities never passed to Store.
var ErrNotStored = errors.New("testsupport: entity was not stored")

// MemoryCatalog is an in-memory cache.Catalog. Entities are stored by
// pointer identity and get a random UUID as identifier.
type MemoryCatalog struct {
	mu       sync.Mutex
	types    map[string]cache.EntityType
	classes  map[string]cache.FieldClasses
	entities map[string]map[string]any
	ids      map[any]string
	lookups  map[string]int
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		types:    make(map[string]cache.EntityType),
		classes:  make(map[string]cache.FieldClasses),
		entities: make(map[string]map[string]any),
		ids:      make(map[any]string),
		lookups:  make(map[string]int),
	}
}

// Define declares an entity type.
func (c *MemoryCatalog) Define(name string, persisted bool, classes cache.FieldClasses) *MemoryCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.types[name] = cache.EntityType{Name: name, Persisted: persisted}
	c.classes[name] = classes
	if c.entities[name] == nil {
		c.entities[name] = make(map[string]any)
	}
	return c
}

// Store saves entity, which must be a pointer, and returns its identifier.
func (c *MemoryCatalog) Store(name string, entity any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	store, ok := c.entities[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", cache.ErrUnknownEntityType, name)
	}
	if !isPointer(entity) {
		return "", fmt.Errorf("testsupport: %T is not a pointer", entity)
	}
	if id, ok := c.ids[entity]; ok {
		store[id] = entity
		return id, nil
	}

	id := uuid.NewString()
	store[id] = entity
	c.ids[entity] = id
	return id, nil
}

// Delete removes the entity stored under id. The entity keeps its
// identifier, like a deleted row keeps its primary key.
func (c *MemoryCatalog) Delete(name, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entities[name], id)
}

// Count returns the number of stored entities of a type.
func (c *MemoryCatalog) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entities[name])
}

// Lookups returns how many times Resolve was called for a type.
func (c *MemoryCatalog) Lookups(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups[name]
}

// Describe implements cache.Describer.
func (c *MemoryCatalog) Describe(ctx context.Context, name string) (cache.EntityType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	et, ok := c.types[name]
	if !ok {
		return cache.EntityType{}, fmt.Errorf("%w: %s", cache.ErrUnknownEntityType, name)
	}
	return et, nil
}

// ClassifyFields implements cache.FieldClassifier.
func (c *MemoryCatalog) ClassifyFields(ctx context.Context, et cache.EntityType) (cache.FieldClasses, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classes[et.Name], nil
}

// Resolve implements cache.Resolver.
func (c *MemoryCatalog) Resolve(ctx context.Context, et cache.EntityType, id string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lookups[et.Name]++
	entity, ok := c.entities[et.Name][id]
	return entity, ok, nil
}

// IdentifierOf implements cache.Resolver.
func (c *MemoryCatalog) IdentifierOf(entity any) (string, error) {
	if !isPointer(entity) {
		return "", ErrNotStored
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.ids[entity]
	if !ok {
		return "", ErrNotStored
	}
	return id, nil
}

func isPointer(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Ptr
}
