package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

var base = time.Date(2016, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Set(t time.Time) { c.now = t }

// record is the entity type used throughout the package tests.
type record struct {
	ID    string
	Label string
}

// fakeCatalog is an in-memory Catalog that tracks lookups.
type fakeCatalog struct {
	types         map[string]EntityType
	classes       map[string]FieldClasses
	records       map[string]*record
	resolveCalls  []string
	classifyCalls int
	resolveErr    error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		types:   make(map[string]EntityType),
		classes: make(map[string]FieldClasses),
		records: make(map[string]*record),
	}
}

func (c *fakeCatalog) define(name string, persisted bool, classes FieldClasses) {
	c.types[name] = EntityType{Name: name, Persisted: persisted}
	c.classes[name] = classes
}

func (c *fakeCatalog) Describe(ctx context.Context, name string) (EntityType, error) {
	et, ok := c.types[name]
	if !ok {
		return EntityType{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, name)
	}
	return et, nil
}

func (c *fakeCatalog) ClassifyFields(ctx context.Context, et EntityType) (FieldClasses, error) {
	c.classifyCalls++
	return c.classes[et.Name], nil
}

func (c *fakeCatalog) Resolve(ctx context.Context, et EntityType, id string) (any, bool, error) {
	c.resolveCalls = append(c.resolveCalls, id)
	if c.resolveErr != nil {
		return nil, false, c.resolveErr
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec, true, nil
}

func (c *fakeCatalog) IdentifierOf(entity any) (string, error) {
	rec, ok := entity.(*record)
	if !ok {
		return "", errors.New("not a record")
	}
	return rec.ID, nil
}

// creator hands out create functions that persist numbered records into the catalog.
type creator struct {
	catalog *fakeCatalog
	calls   int
}

func (c *creator) fn() CreateFn {
	return func(ctx context.Context) (any, error) {
		c.calls++
		rec := &record{ID: fmt.Sprintf("rec-%d", c.calls)}
		c.catalog.records[rec.ID] = rec
		return rec, nil
	}
}

func newTestEnv(catalog *fakeCatalog, clock Clock) *environment {
	return &environment{
		resolver:   catalog,
		executor:   inlineExecutor{},
		clock:      clock,
		logger:     log.New(io.Discard),
		metrics:    NoopMetrics{},
		serializer: NewDefaultKeySerializer(),
		timeout:    DefaultTimeout,
	}
}

func newTestRegistry(t *testing.T, catalog *fakeCatalog, clock Clock, opts ...Option) *Registry {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.CreateTimeout = 0

	opts = append([]Option{WithCatalog(catalog), WithClock(clock)}, opts...)
	registry, err := NewRegistry(cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return registry
}

func mustFetch(t *testing.T, c *RecordCache, key string, create CreateFn) *record {
	t.Helper()

	entity, err := c.Fetch(context.Background(), key, create)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	rec, ok := entity.(*record)
	if !ok {
		t.Fatalf("expected *record, got %T", entity)
	}
	return rec
}
