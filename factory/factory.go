package factory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/goliatone/go-fixture-cache/cache"
)

// ErrUnknownTrait is returned when a call names a trait the factory does not define.
var ErrUnknownTrait = errors.New("factory: unknown trait")

// BuildFunc returns a new record populated with defaults. It runs under a
// context marked with cache.WithoutCaching when called on behalf of Create,
// so associated records it creates through other factories are never cached.
type BuildFunc[T any] func(ctx context.Context) (T, error)

// PersistFunc stores a built record and returns the stored version.
type PersistFunc[T any] func(ctx context.Context, record T) (T, error)

// TraitFunc adjusts a record. Traits run in call order before overrides.
type TraitFunc[T any] func(record T) T

// Factory builds and persists fixture records of one entity type, replaying
// previously created records through a cache.Registry when caching is enabled.
type Factory[T any] struct {
	registry *cache.Registry
	name     string
	build    BuildFunc[T]
	persist  PersistFunc[T]
	traits   map[string]TraitFunc[T]
}

// New creates a factory for the entity type name. registry may be nil to
// disable caching; persist may be nil for records that are never stored.
func New[T any](registry *cache.Registry, name string, build BuildFunc[T], persist PersistFunc[T]) *Factory[T] {
	return &Factory[T]{
		registry: registry,
		name:     name,
		build:    build,
		persist:  persist,
		traits:   make(map[string]TraitFunc[T]),
	}
}

// Name returns the entity type name used as the cache key.
func (f *Factory[T]) Name() string {
	return f.name
}

// Trait defines a named variation.
func (f *Factory[T]) Trait(name string, fn TraitFunc[T]) *Factory[T] {
	f.traits[name] = fn
	return f
}

// Build returns an unsaved record with traits and overrides applied.
// Override keys match struct fields by Go name or snake_case name.
func (f *Factory[T]) Build(ctx context.Context, overrides map[string]any, traits ...string) (T, error) {
	var zero T
	if err := f.checkTraits(traits); err != nil {
		return zero, err
	}

	record, err := f.build(ctx)
	if err != nil {
		return zero, fmt.Errorf("factory %s: build: %w", f.name, err)
	}
	for _, name := range traits {
		record = f.traits[name](record)
	}
	if err := applyOverrides(&record, overrides); err != nil {
		return zero, fmt.Errorf("factory %s: %w", f.name, err)
	}
	return record, nil
}

// Create returns a persisted record. When the registry is enabled and ctx
// does not disable caching, a record created with the same overrides and
// traits in an earlier cycle is replayed instead of creating a new one.
func (f *Factory[T]) Create(ctx context.Context, overrides map[string]any, traits ...string) (T, error) {
	var zero T
	if err := f.checkTraits(traits); err != nil {
		return zero, err
	}
	overrides, err := canonicalOverrides[T](overrides)
	if err != nil {
		return zero, fmt.Errorf("factory %s: %w", f.name, err)
	}

	create := func(ctx context.Context) (T, error) {
		ctx = cache.WithoutCaching(ctx)
		record, err := f.Build(ctx, overrides, traits...)
		if err != nil {
			return zero, err
		}
		if f.persist == nil {
			return record, nil
		}
		return f.persist(ctx, record)
	}

	if f.registry == nil || !f.registry.Enabled() || cache.CachingDisabled(ctx) {
		return create(ctx)
	}
	return cache.Fetch(ctx, f.registry, f.name, cache.OverridesFrom(overrides), traits, create)
}

// CreateList creates n records with the same arguments. Within one cycle
// every call yields a distinct record.
func (f *Factory[T]) CreateList(ctx context.Context, n int, overrides map[string]any, traits ...string) ([]T, error) {
	records := make([]T, 0, n)
	for i := 0; i < n; i++ {
		record, err := f.Create(ctx, overrides, traits...)
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (f *Factory[T]) checkTraits(traits []string) error {
	for _, name := range traits {
		if _, ok := f.traits[name]; !ok {
			return fmt.Errorf("%w: %s has no trait %q", ErrUnknownTrait, f.name, name)
		}
	}
	return nil
}

// applyOverrides sets directly assignable values by reflection and decodes
// the rest with mapstructure, which also converts between compatible kinds.
func applyOverrides(target any, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}

	v := reflect.ValueOf(target).Elem()
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return errors.New("nil record")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("overrides need a struct record, got %s", v.Type())
	}

	rest := make(map[string]any)
	for key, value := range overrides {
		field, ok := fieldByKey(v, key)
		if !ok || !field.CanSet() {
			rest[key] = value
			continue
		}
		switch {
		case value == nil:
			field.Set(reflect.Zero(field.Type()))
		case reflect.TypeOf(value).AssignableTo(field.Type()):
			field.Set(reflect.ValueOf(value))
		default:
			rest[key] = value
		}
	}
	if len(rest) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v.Addr().Interface(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		MatchName:        matchName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(rest); err != nil {
		return fmt.Errorf("apply overrides: %w", err)
	}
	return nil
}

func fieldByKey(v reflect.Value, key string) (reflect.Value, bool) {
	if i, ok := fieldIndex(v.Type(), key); ok {
		return v.Field(i), true
	}
	return reflect.Value{}, false
}

func fieldIndex(t reflect.Type, key string) (int, bool) {
	for i := 0; i < t.NumField(); i++ {
		if sf := t.Field(i); sf.IsExported() && !sf.Anonymous && matchName(key, sf.Name) {
			return i, true
		}
	}
	return 0, false
}

// canonicalOverrides renames each key to the Go name of the field it sets,
// so the cache keys and classifies "TEAM", "team" and "Team" alike. Keys
// that match no field are kept as given.
func canonicalOverrides[T any](overrides map[string]any) (map[string]any, error) {
	if len(overrides) == 0 {
		return overrides, nil
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return overrides, nil
	}

	out := make(map[string]any, len(overrides))
	given := make(map[string]string, len(overrides))
	for key, value := range overrides {
		name := key
		if i, ok := fieldIndex(t, key); ok {
			name = t.Field(i).Name
		}
		if prev, dup := given[name]; dup {
			return nil, fmt.Errorf("overrides %q and %q both set %s", prev, key, name)
		}
		given[name] = key
		out[name] = value
	}
	return out, nil
}

// matchName treats "author_id", "AuthorID" and "authorid" as the same field.
func matchName(key, fieldName string) bool {
	return strings.EqualFold(strings.ReplaceAll(key, "_", ""), fieldName)
}
