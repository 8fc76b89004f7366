package cache

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-fixture-cache/internal/cacheinfra"
)

// Registry is the entry point of the replay cache. It owns one EntityCache
// per entity type name and fans resets out to all of them.
//
// A Registry is process scoped state: create one per test process (or suite),
// call ResetAllCycles between test executions and ResetAll when accumulated
// fixtures must be forgotten.
type Registry struct {
	config     Config
	enabled    atomic.Bool
	env        *environment
	describer  Describer
	classifier FieldClassifier
	metadata   *cacheinfra.MetadataStore[FieldClasses]
	caches     *xsync.MapOf[string, *EntityCache]
}

// Option customizes a Registry.
type Option func(*Registry)

// WithCatalog sets the describer, classifier and resolver at once.
func WithCatalog(c Catalog) Option {
	return func(r *Registry) {
		r.describer = c
		r.classifier = c
		r.env.resolver = c
	}
}

// WithDescriber sets how entity type names are described.
func WithDescriber(d Describer) Option {
	return func(r *Registry) { r.describer = d }
}

// WithClassifier sets the relation field classifier.
func WithClassifier(c FieldClassifier) Option {
	return func(r *Registry) { r.classifier = c }
}

// WithResolver sets the identifier resolver.
func WithResolver(res Resolver) Option {
	return func(r *Registry) { r.env.resolver = res }
}

// WithExecutor sets the executor used for creation on cache misses.
func WithExecutor(e Executor) Option {
	return func(r *Registry) { r.env.executor = e }
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.env.clock = c }
}

// WithLogger sets the logger. The default logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.env.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.env.metrics = m }
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(s KeySerializer) Option {
	return func(r *Registry) { r.env.serializer = s }
}

// WithMetadataStore shares a relation metadata store between registries.
func WithMetadataStore(s *cacheinfra.MetadataStore[FieldClasses]) Option {
	return func(r *Registry) { r.metadata = s }
}

// NewRegistry validates cfg and builds a registry. A Describer and a Resolver
// are required, usually both provided through WithCatalog.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		config: cfg,
		env: &environment{
			clock:      systemClock{},
			logger:     log.New(io.Discard),
			metrics:    NoopMetrics{},
			serializer: NewDefaultKeySerializer(),
			timeout:    cfg.Timeout,
		},
		caches: xsync.NewMapOf[string, *EntityCache](),
	}
	r.enabled.Store(cfg.Enabled)

	for _, opt := range opts {
		opt(r)
	}

	if r.describer == nil {
		return nil, errors.New("cache: registry requires a Describer")
	}
	if r.env.resolver == nil {
		return nil, errors.New("cache: registry requires a Resolver")
	}
	if r.env.executor == nil {
		if cfg.CreateTimeout > 0 {
			r.env.executor = cacheinfra.NewBoundedExecutor(cfg.CreateTimeout)
		} else {
			r.env.executor = inlineExecutor{}
		}
	}
	if r.metadata == nil {
		store, err := cacheinfra.NewMetadataStore[FieldClasses](cfg.Metadata.toInternal())
		if err != nil {
			return nil, err
		}
		r.metadata = store
	}

	return r, nil
}

// Fetch replays or creates an entity of the named type.
func (r *Registry) Fetch(ctx context.Context, entityType string, overrides Overrides, traits []string, create CreateFn) (any, error) {
	ec, err := r.EntityCache(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return ec.Fetch(ctx, overrides, traits, create)
}

// EntityCache returns the cache for entityType, creating it on first use.
func (r *Registry) EntityCache(ctx context.Context, entityType string) (*EntityCache, error) {
	if ec, ok := r.caches.Load(entityType); ok {
		return ec, nil
	}

	et, err := r.describer.Describe(ctx, entityType)
	if err != nil {
		return nil, err
	}

	var classes FieldClasses
	if et.Persisted && r.classifier != nil {
		classes, err = r.metadata.GetOrCompute(ctx, et.Name, func(ctx context.Context) (FieldClasses, error) {
			return r.classifier.ClassifyFields(ctx, et)
		})
		if err != nil {
			return nil, err
		}
	}

	ec, _ := r.caches.LoadOrStore(entityType, newEntityCache(et, classes, r.env, r.config.PartitionKey))
	return ec, nil
}

// ResetAll discards the entries of every entity cache.
func (r *Registry) ResetAll() {
	r.caches.Range(func(_ string, ec *EntityCache) bool {
		ec.Reset()
		return true
	})
}

// ResetAllCycles rewinds the replay cursors of every entity cache so the next
// cycle replays fixtures from the start.
func (r *Registry) ResetAllCycles() {
	r.caches.Range(func(_ string, ec *EntityCache) bool {
		ec.ResetCycle()
		return true
	})
}

// Purge drops every entity cache. The next fetch for a type describes it
// again; relation metadata is served from the metadata store.
func (r *Registry) Purge() {
	r.caches.Clear()
}

// Len returns the number of entity caches.
func (r *Registry) Len() int {
	return r.caches.Size()
}

// Enabled reports the global caching switch.
func (r *Registry) Enabled() bool {
	return r.enabled.Load()
}

// SetEnabled flips the global caching switch.
func (r *Registry) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// Timeout returns the replay window.
func (r *Registry) Timeout() time.Duration {
	return r.env.timeout
}

// SetTimeout changes the replay window for subsequent fetches.
func (r *Registry) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return &ConfigError{Field: "Timeout", Message: "must be greater than 0"}
	}
	r.env.timeout = d
	return nil
}

// Config returns the configuration the registry was built with.
func (r *Registry) Config() Config {
	return r.config
}
