package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingMetrics struct {
	NoopMetrics
	hits, misses, stale, expired int
	bypass                       map[string]int
}

func (m *countingMetrics) RecordHit(string)  { m.hits++ }
func (m *countingMetrics) RecordMiss(string) { m.misses++ }
func (m *countingMetrics) RecordStale(string) { m.stale++ }
func (m *countingMetrics) RecordExpired(_ string, n int) { m.expired += n }
func (m *countingMetrics) RecordBypass(_, reason string) {
	if m.bypass == nil {
		m.bypass = make(map[string]int)
	}
	m.bypass[reason]++
}

func newTestRecordCache(catalog *fakeCatalog, clock Clock) *RecordCache {
	return newRecordCache(EntityType{Name: "record", Persisted: true}, newTestEnv(catalog, clock))
}

func TestRecordCache_ReplaysInCreationOrder(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	for i := 0; i < 3; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		mustFetch(t, c, "k", cr.fn())
	}
	if cr.calls != 3 {
		t.Fatalf("expected 3 creations in the first cycle, got %d", cr.calls)
	}

	c.ResetCycle()
	clock.Set(base.Add(10 * time.Second))

	for _, want := range []string{"rec-1", "rec-2", "rec-3"} {
		if got := mustFetch(t, c, "k", cr.fn()); got.ID != want {
			t.Fatalf("expected %s, got %s", want, got.ID)
		}
	}
	if cr.calls != 3 {
		t.Fatalf("replay should not create, got %d creations", cr.calls)
	}

	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-4" {
		t.Errorf("expected a new entity once entries run out, got %s", got.ID)
	}
}

func TestRecordCache_NewEntriesInvisibleUntilNextCycle(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	first := mustFetch(t, c, "k", cr.fn())
	second := mustFetch(t, c, "k", cr.fn())
	if first.ID == second.ID {
		t.Fatalf("expected two distinct entities in one cycle, got %s twice", first.ID)
	}
	if len(c.Entries("k")) != 2 {
		t.Errorf("expected 2 entries, got %d", len(c.Entries("k")))
	}
}

func TestRecordCache_SkipsExpiredEntries(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	env := newTestEnv(catalog, clock)
	env.timeout = 900 * time.Second
	metrics := &countingMetrics{}
	env.metrics = metrics
	c := newRecordCache(EntityType{Name: "record", Persisted: true}, env)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	clock.Set(base.Add(2 * time.Second))
	mustFetch(t, c, "k", cr.fn())

	c.ResetCycle()
	clock.Set(base.Add(901 * time.Second))

	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-2" {
		t.Fatalf("expected rec-2 to be replayed, got %s", got.ID)
	}
	if metrics.expired != 1 {
		t.Errorf("expected 1 expired entry, got %d", metrics.expired)
	}

	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-3" {
		t.Errorf("expected a new entity, got %s", got.ID)
	}
	for _, id := range catalog.resolveCalls {
		if id == "rec-1" {
			t.Error("expired entry should never be resolved")
		}
	}
}

func TestRecordCache_EntryAtBoundaryIsExpired(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	c.ResetCycle()
	clock.Set(base.Add(DefaultTimeout))

	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-2" {
		t.Errorf("entry created exactly timeout ago must not replay, got %s", got.ID)
	}
}

func TestRecordCache_DistinctKeysDoNotShareEntries(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "foo", cr.fn())
	c.ResetCycle()

	if got := mustFetch(t, c, "bar", cr.fn()); got.ID != "rec-2" {
		t.Errorf("expected a new entity for a different key, got %s", got.ID)
	}
	if got := mustFetch(t, c, "foo", cr.fn()); got.ID != "rec-1" {
		t.Errorf("expected rec-1 replayed for foo, got %s", got.ID)
	}

	keys := c.Keys()
	if len(keys) != 2 || keys[0] != "bar" || keys[1] != "foo" {
		t.Errorf("unexpected keys %v", keys)
	}
	if c.Len("foo") != 1 || c.Len("bar") != 1 || c.Len("baz") != 0 {
		t.Errorf("unexpected entry counts foo=%d bar=%d baz=%d", c.Len("foo"), c.Len("bar"), c.Len("baz"))
	}
}

func TestRecordCache_KeysCreatedInOneCycleReplayInAnyOrder(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	firstName := Overrides{{Field: "first_name", Value: "foo"}}
	lastName := Overrides{{Field: "last_name", Value: "bar"}}
	fetch := func(overrides Overrides) string {
		t.Helper()
		entity, err := c.FetchFor(context.Background(), overrides, nil, cr.fn())
		if err != nil {
			t.Fatalf("unexpected fetch error: %v", err)
		}
		return entity.(*record).ID
	}

	first := fetch(firstName)
	last := fetch(lastName)
	if first == last {
		t.Fatalf("expected distinct entities, got %s twice", first)
	}

	c.ResetCycle()
	if got := fetch(lastName); got != last {
		t.Errorf("expected %s for last_name, got %s", last, got)
	}
	if got := fetch(firstName); got != first {
		t.Errorf("expected %s for first_name, got %s", first, got)
	}
	if cr.calls != 2 {
		t.Errorf("expected 2 creations, got %d", cr.calls)
	}
}

func TestRecordCache_FetchAtRecordsEntriesAtGivenInstant(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	at := base.Add(-time.Hour)
	if _, err := c.FetchAt(context.Background(), "k", at, cr.fn()); err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}

	entries := c.Entries("k")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].CreatedAt.Equal(at) {
		t.Errorf("expected entry stamped at %v, got %v", at, entries[0].CreatedAt)
	}

	c.ResetCycle()
	entity, err := c.FetchAt(context.Background(), "k", at, cr.fn())
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if got := entity.(*record).ID; got != "rec-1" {
		t.Errorf("expected rec-1 replayed at the same instant, got %s", got)
	}
}

func TestRecordCache_OrdersEntriesChronologically(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base.Add(5 * time.Second)}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	clock.Set(base)
	mustFetch(t, c, "k", cr.fn())

	c.ResetCycle()
	clock.Set(base.Add(10 * time.Second))

	for _, want := range []string{"rec-2", "rec-1"} {
		if got := mustFetch(t, c, "k", cr.fn()); got.ID != want {
			t.Fatalf("expected %s, got %s", want, got.ID)
		}
	}
}

func TestRecordCache_FutureEntriesAreNotConsumed(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base.Add(10 * time.Second)}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	c.ResetCycle()
	clock.Set(base)

	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-2" {
		t.Fatalf("future entry must not replay, got %s", got.ID)
	}
	if len(catalog.resolveCalls) != 0 {
		t.Fatalf("future entry must not be resolved, resolved %v", catalog.resolveCalls)
	}

	clock.Set(base.Add(10 * time.Second))
	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-1" {
		t.Errorf("entry should replay once its time has come, got %s", got.ID)
	}
}

func TestRecordCache_SkipsEntitiesThatNoLongerExist(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	env := newTestEnv(catalog, clock)
	metrics := &countingMetrics{}
	env.metrics = metrics
	c := newRecordCache(EntityType{Name: "record", Persisted: true}, env)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	mustFetch(t, c, "k", cr.fn())
	delete(catalog.records, "rec-1")

	c.ResetCycle()
	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-2" {
		t.Fatalf("expected rec-2, got %s", got.ID)
	}
	if metrics.stale != 1 || metrics.hits != 1 {
		t.Errorf("expected 1 stale and 1 hit, got %d and %d", metrics.stale, metrics.hits)
	}
	if len(c.Entries("k")) != 2 {
		t.Errorf("stale entries stay recorded, got %d entries", len(c.Entries("k")))
	}

	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-3" {
		t.Fatalf("expected a new entity once entries run out, got %s", got.ID)
	}
	resolved := 0
	for _, id := range catalog.resolveCalls {
		if id == "rec-1" {
			resolved++
		}
	}
	if resolved != 1 {
		t.Errorf("stale entry should be resolved once per cycle, resolved %d times", resolved)
	}

	// The stale entry is retried in the next cycle.
	catalog.records["rec-1"] = &record{ID: "rec-1"}
	c.ResetCycle()
	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-1" {
		t.Errorf("expected rec-1 in the next cycle, got %s", got.ID)
	}
}

func TestRecordCache_ResolverErrorPropagates(t *testing.T) {
	catalog := newFakeCatalog()
	clock := &fakeClock{now: base}
	c := newTestRecordCache(catalog, clock)
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	c.ResetCycle()

	boom := errors.New("connection refused")
	catalog.resolveErr = boom

	_, err := c.Fetch(context.Background(), "k", cr.fn())
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
	if cr.calls != 1 {
		t.Errorf("resolver failure must not create, got %d creations", cr.calls)
	}
}

func TestRecordCache_CreateFailureLeavesNoEntry(t *testing.T) {
	catalog := newFakeCatalog()
	c := newTestRecordCache(catalog, &fakeClock{now: base})

	boom := errors.New("insert failed")
	_, err := c.Fetch(context.Background(), "k", func(context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
	if len(c.Entries("k")) != 0 {
		t.Errorf("expected no entries, got %v", c.Entries("k"))
	}
}

func TestRecordCache_IdentifierFailureReturnsUncachedEntity(t *testing.T) {
	catalog := newFakeCatalog()
	c := newTestRecordCache(catalog, &fakeClock{now: base})

	entity, err := c.Fetch(context.Background(), "k", func(context.Context) (any, error) {
		return "not a record", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity != "not a record" {
		t.Errorf("expected the created entity back, got %v", entity)
	}
	if len(c.Entries("k")) != 0 {
		t.Errorf("expected no entries, got %v", c.Entries("k"))
	}
}

func TestRecordCache_ResetAll(t *testing.T) {
	catalog := newFakeCatalog()
	c := newTestRecordCache(catalog, &fakeClock{now: base})
	cr := &creator{catalog: catalog}

	mustFetch(t, c, "k", cr.fn())
	c.ResetAll()

	if len(c.Keys()) != 0 {
		t.Fatalf("expected no keys after ResetAll, got %v", c.Keys())
	}
	if got := mustFetch(t, c, "k", cr.fn()); got.ID != "rec-2" {
		t.Errorf("expected a new entity after ResetAll, got %s", got.ID)
	}
}

func TestInsertEntry(t *testing.T) {
	var entries []Entry
	entries = insertEntry(entries, Entry{CreatedAt: base.Add(time.Second), Identifier: "b"})
	entries = insertEntry(entries, Entry{CreatedAt: base, Identifier: "a"})
	entries = insertEntry(entries, Entry{CreatedAt: base.Add(time.Second), Identifier: "c"})
	entries = insertEntry(entries, Entry{CreatedAt: base.Add(2 * time.Second), Identifier: "d"})

	want := []string{"a", "b", "c", "d"}
	for i, e := range entries {
		if e.Identifier != want[i] {
			t.Fatalf("expected order %v, got %v", want, entries)
		}
	}
}
