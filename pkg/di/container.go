package di

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-fixture-cache/cache"
	"github.com/goliatone/go-fixture-cache/factory"
	"github.com/goliatone/go-fixture-cache/internal/cacheinfra"
	"github.com/goliatone/go-fixture-cache/repositorycache"
)

// Container wires the replay cache for a bun database: one catalog of
// registered models, one registry, and an executor that runs every creation
// on its own connection.
type Container struct {
	config   cache.Config
	db       *bun.DB
	logger   *log.Logger
	catalog  *repositorycache.Catalog
	registry *cache.Registry
}

type options struct {
	logger     *log.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	clock      cache.Clock
}

// Option customizes a Container.
type Option func(*options)

// WithLogger sets the logger shared by the catalog and the registry.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPrometheus records cache activity with collectors registered on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider sets the provider used for creation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewContainer builds a container for db using cfg.
func NewContainer(cfg cache.Config, db *bun.DB, opts ...Option) (*Container, error) {
	if db == nil {
		return nil, errors.New("di: nil database")
	}

	o := &options{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(o)
	}

	catalog := repositorycache.NewCatalog(db, repositorycache.WithLogger(o.logger))

	var inner cache.Executor
	if cfg.CreateTimeout > 0 {
		var execOpts []cacheinfra.ExecutorOption
		if o.tracer != nil {
			execOpts = append(execOpts, cacheinfra.WithTracerProvider(o.tracer))
		}
		inner = cacheinfra.NewBoundedExecutor(cfg.CreateTimeout, execOpts...)
	}
	executor := repositorycache.NewConnExecutor(db, inner,
		repositorycache.WithStatementTimeout(cfg.CreateTimeout))

	registryOpts := []cache.Option{
		cache.WithCatalog(catalog),
		cache.WithExecutor(executor),
		cache.WithLogger(o.logger),
	}
	if o.clock != nil {
		registryOpts = append(registryOpts, cache.WithClock(o.clock))
	}
	if o.registerer != nil {
		metrics, err := cacheinfra.NewPrometheusMetrics(o.registerer)
		if err != nil {
			return nil, err
		}
		registryOpts = append(registryOpts, cache.WithMetrics(metrics))
	}

	registry, err := cache.NewRegistry(cfg, registryOpts...)
	if err != nil {
		return nil, err
	}

	return &Container{
		config:   cfg,
		db:       db,
		logger:   o.logger,
		catalog:  catalog,
		registry: registry,
	}, nil
}

// NewContainerFromEnv builds a container with the configuration read by
// cache.LoadConfig.
func NewContainerFromEnv(db *bun.DB, opts ...Option) (*Container, error) {
	cfg, err := cache.LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg, db, opts...)
}

// Registry returns the replay cache registry.
func (c *Container) Registry() *cache.Registry {
	return c.registry
}

// Catalog returns the catalog models are registered with.
func (c *Container) Catalog() *repositorycache.Catalog {
	return c.catalog
}

// Config returns the configuration the container was built with.
func (c *Container) Config() cache.Config {
	return c.config
}

// DB returns the database handle.
func (c *Container) DB() *bun.DB {
	return c.db
}

// NewFactory registers a persisted model under name and returns a factory
// that stores records through repo.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewFactory[*User](container, "user", userRepository, buildUser)
func NewFactory[T any](c *Container, name string, repo repository.Repository[T], build factory.BuildFunc[T]) (*factory.Factory[T], error) {
	if err := repositorycache.Register(c.catalog, name, repo); err != nil {
		return nil, err
	}
	c.logger.Debug("registered fixture factory", "entity_type", name, "persisted", true)
	return factory.New[T](c.registry, name, build, repositorycache.Persister(repo)), nil
}

// NewValueFactory registers a model that is never stored, such as a value
// object, and returns a factory for it. Its records are never cached.
func NewValueFactory[T any](c *Container, name string, build factory.BuildFunc[T]) (*factory.Factory[T], error) {
	if err := repositorycache.RegisterValue[T](c.catalog, name); err != nil {
		return nil, err
	}
	c.logger.Debug("registered fixture factory", "entity_type", name, "persisted", false)
	return factory.New[T](c.registry, name, build, nil), nil
}
