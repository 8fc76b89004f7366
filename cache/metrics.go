package cache

import "time"

// Bypass reasons reported to Metrics.RecordBypass.
const (
	BypassNotPersisted = "not_persisted"
	BypassRelation     = "relation_override"
)

// Metrics receives replay cache events. Implementations must be cheap; they
// are called on every fetch.
type Metrics interface {
	RecordHit(entityType string)
	RecordMiss(entityType string)
	RecordBypass(entityType, reason string)
	RecordStale(entityType string)
	RecordExpired(entityType string, n int)
	RecordCreateDuration(entityType string, d time.Duration)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) RecordHit(string)                           {}
func (NoopMetrics) RecordMiss(string)                          {}
func (NoopMetrics) RecordBypass(string, string)                {}
func (NoopMetrics) RecordStale(string)                         {}
func (NoopMetrics) RecordExpired(string, int)                  {}
func (NoopMetrics) RecordCreateDuration(string, time.Duration) {}
