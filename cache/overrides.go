package cache

import (
	"slices"
	"strings"
)

// Override is a single field value supplied by a fixture call.
type Override struct {
	Field string
	Value any
}

// Overrides is an ordered mapping from field name to value.
type Overrides []Override

// OverridesFrom builds Overrides from a map, ordered by field name.
func OverridesFrom(m map[string]any) Overrides {
	if len(m) == 0 {
		return nil
	}
	out := make(Overrides, 0, len(m))
	for field, value := range m {
		out = append(out, Override{Field: field, Value: value})
	}
	return out.Sorted()
}

// Fields returns the field names in their current order.
func (o Overrides) Fields() []string {
	fields := make([]string, len(o))
	for i, ov := range o {
		fields[i] = ov.Field
	}
	return fields
}

// Sorted returns a copy ordered by field name. The sort is stable so repeated
// fields keep their relative order.
func (o Overrides) Sorted() Overrides {
	sorted := slices.Clone(o)
	slices.SortStableFunc(sorted, func(a, b Override) int {
		return strings.Compare(a.Field, b.Field)
	})
	return sorted
}

// Map converts the overrides into a map. Later duplicates win.
func (o Overrides) Map() map[string]any {
	m := make(map[string]any, len(o))
	for _, ov := range o {
		m[ov.Field] = ov.Value
	}
	return m
}
