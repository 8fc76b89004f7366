package testsupport

import (
	"context"
	"testing"
	"time"
)

// Scenario is a scripted sequence of fixture calls replayed against a cache.
type Scenario struct {
	Name    string `json:"name"`
	Start   string `json:"start"`
	Timeout string `json:"timeout"`
	Steps   []Step `json:"steps"`
}

// Step is one action of a Scenario. Exactly one of Create, ResetCycle,
// ResetAll or Delete is set.
type Step struct {
	// At is the offset from Scenario.Start the clock is moved to first.
	At string `json:"at,omitempty"`
	// Locale selects the partition key for locale aware caches.
	Locale string `json:"locale,omitempty"`

	Create    bool           `json:"create,omitempty"`
	Traits    []string       `json:"traits,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
	// Save names the created or replayed entity for later steps.
	Save string `json:"save,omitempty"`
	// Expect names a saved entity the call must return.
	Expect string `json:"expect,omitempty"`
	// ExpectNew requires an entity that differs from every saved one.
	ExpectNew bool `json:"expect_new,omitempty"`

	ResetCycle bool   `json:"reset_cycle,omitempty"`
	ResetAll   bool   `json:"reset_all,omitempty"`
	Delete     string `json:"delete,omitempty"`
}

// StartTime parses Scenario.Start as RFC 3339.
func (s Scenario) StartTime(t *testing.T) time.Time {
	t.Helper()

	start, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		t.Fatalf("scenario %s: invalid start %q: %v", s.Name, s.Start, err)
	}
	return start
}

// TimeoutDuration parses Scenario.Timeout, defaulting to def when empty.
func (s Scenario) TimeoutDuration(t *testing.T, def time.Duration) time.Duration {
	t.Helper()

	if s.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		t.Fatalf("scenario %s: invalid timeout %q: %v", s.Name, s.Timeout, err)
	}
	return d
}

// Offset parses Step.At. An empty offset returns ok=false.
func (s Step) Offset(t *testing.T) (time.Duration, bool) {
	t.Helper()

	if s.At == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s.At)
	if err != nil {
		t.Fatalf("invalid step offset %q: %v", s.At, err)
	}
	return d, true
}

// LoadScenarios reads a JSON array of scenarios from testdata.
func LoadScenarios(t *testing.T, filename string) []Scenario {
	t.Helper()

	var scenarios []Scenario
	LoadFixtureJSON(t, FixturePath(filename), &scenarios)
	if len(scenarios) == 0 {
		t.Fatalf("no scenarios in %s", filename)
	}
	return scenarios
}

// Harness connects RunScenario to the system under test.
type Harness struct {
	Clock *FakeClock
	// Create performs the fixture call described by step.
	Create func(ctx context.Context, step Step) (any, error)
	// Identify returns a stable identity for entities returned by Create.
	Identify   func(entity any) string
	ResetCycle func()
	ResetAll   func()
	// Delete removes a saved entity from the backing store.
	Delete func(entity any)
	// SetLocale switches the active locale. Optional.
	SetLocale func(locale string)
}

// RunScenario executes every step of s against h, failing t on the first
// mismatch.
func RunScenario(t *testing.T, s Scenario, h Harness) {
	t.Helper()

	ctx := context.Background()
	start := s.StartTime(t)
	h.Clock.Set(start)
	saved := make(map[string]any)

	for i, step := range s.Steps {
		if offset, ok := step.Offset(t); ok {
			h.Clock.Set(start.Add(offset))
		}
		if step.Locale != "" && h.SetLocale != nil {
			h.SetLocale(step.Locale)
		}

		switch {
		case step.ResetCycle:
			h.ResetCycle()
		case step.ResetAll:
			h.ResetAll()
		case step.Delete != "":
			entity, ok := saved[step.Delete]
			if !ok {
				t.Fatalf("%s step %d: nothing saved as %q", s.Name, i, step.Delete)
			}
			h.Delete(entity)
		case step.Create:
			got, err := h.Create(ctx, step)
			if err != nil {
				t.Fatalf("%s step %d: create failed: %v", s.Name, i, err)
			}
			gotID := h.Identify(got)

			if step.Expect != "" {
				want, ok := saved[step.Expect]
				if !ok {
					t.Fatalf("%s step %d: nothing saved as %q", s.Name, i, step.Expect)
				}
				if wantID := h.Identify(want); gotID != wantID {
					t.Fatalf("%s step %d: expected %s (%s), got %s", s.Name, i, step.Expect, wantID, gotID)
				}
			}
			if step.ExpectNew {
				for name, entity := range saved {
					if h.Identify(entity) == gotID {
						t.Fatalf("%s step %d: expected a new entity, got %s", s.Name, i, name)
					}
				}
			}
			if step.Save != "" {
				saved[step.Save] = got
			}
		default:
			t.Fatalf("%s step %d: no action", s.Name, i)
		}
	}
}
