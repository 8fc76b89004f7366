package cache

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-fixture-cache/internal/cacheinfra"
)

var (
	// ErrInvalidResultType is returned by Fetch when a replayed or created entity
	// does not have the requested type.
	ErrInvalidResultType = errors.New("cache: entity has unexpected type")

	// ErrUnknownEntityType is returned by describers that do not know a name.
	ErrUnknownEntityType = errors.New("cache: unknown entity type")
)

// CreateFn produces a new persisted entity. It is only called on a cache miss
// or when caching is bypassed.
type CreateFn = func(ctx context.Context) (any, error)

// EntityType describes a kind of fixture entity.
type EntityType struct {
	Name string
	// Persisted marks record types backed by a store. Only those are cached.
	Persisted bool
}

// FieldClasses lists the relation fields of an entity type. Common holds
// direct foreign key relations together with their raw key column names,
// Uncommon every other relation kind.
type FieldClasses struct {
	Common   []string
	Uncommon []string
}

// Describer resolves an entity type name into its descriptor.
type Describer interface {
	Describe(ctx context.Context, name string) (EntityType, error)
}

// FieldClassifier reports the relation fields of an entity type.
type FieldClassifier interface {
	ClassifyFields(ctx context.Context, et EntityType) (FieldClasses, error)
}

// Resolver looks up previously created entities and extracts identifiers
// from new ones.
type Resolver interface {
	// Resolve returns found=false when the entity no longer exists. A non nil
	// error signals an infrastructure failure and aborts the fetch.
	Resolve(ctx context.Context, et EntityType, id string) (entity any, found bool, err error)
	IdentifierOf(entity any) (string, error)
}

// Catalog bundles every collaborator a registry needs from the embedding system.
type Catalog interface {
	Describer
	FieldClassifier
	Resolver
}

// Executor runs creation functions, typically isolated and time bounded.
type Executor interface {
	Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error)
}

// Clock supplies the current time for expiry decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewBoundedExecutor returns the executor NewRegistry installs when
// Config.CreateTimeout is set. Each creation runs on its own goroutine under
// timeout inside a span from tp, or from the global provider when tp is nil.
func NewBoundedExecutor(timeout time.Duration, tp trace.TracerProvider) Executor {
	if tp == nil {
		return cacheinfra.NewBoundedExecutor(timeout)
	}
	return cacheinfra.NewBoundedExecutor(timeout, cacheinfra.WithTracerProvider(tp))
}

type inlineExecutor struct{}

func (inlineExecutor) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

// Fetch is a type-safe wrapper around Registry.Fetch.
func Fetch[T any](ctx context.Context, r *Registry, entityType string, overrides Overrides, traits []string, create func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := r.Fetch(ctx, entityType, overrides, traits, func(ctx context.Context) (any, error) {
		return create(ctx)
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
