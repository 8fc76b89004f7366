package cacheinfra

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics records replay cache activity as Prometheus series,
// labelled by entity type.
type PrometheusMetrics struct {
	hits           *prometheus.CounterVec
	misses         *prometheus.CounterVec
	bypasses       *prometheus.CounterVec
	stale          *prometheus.CounterVec
	expired        *prometheus.CounterVec
	createDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// Collectors already registered by a previous call are reused.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixture",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of fixtures replayed from the cache",
		}, []string{"entity_type"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixture",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of fetches that created a new fixture",
		}, []string{"entity_type"}),
		bypasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixture",
			Subsystem: "cache",
			Name:      "bypass_total",
			Help:      "Total number of fetches that skipped the cache",
		}, []string{"entity_type", "reason"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixture",
			Subsystem: "cache",
			Name:      "stale_total",
			Help:      "Total number of cached identifiers that no longer resolved",
		}, []string{"entity_type"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixture",
			Subsystem: "cache",
			Name:      "expired_total",
			Help:      "Total number of cached entries skipped for age",
		}, []string{"entity_type"}),
		createDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fixture",
			Subsystem: "cache",
			Name:      "create_duration_seconds",
			Help:      "Time spent creating fixtures on cache misses",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity_type"}),
	}

	var err error
	if m.hits, err = registerCounter(reg, m.hits); err != nil {
		return nil, err
	}
	if m.misses, err = registerCounter(reg, m.misses); err != nil {
		return nil, err
	}
	if m.bypasses, err = registerCounter(reg, m.bypasses); err != nil {
		return nil, err
	}
	if m.stale, err = registerCounter(reg, m.stale); err != nil {
		return nil, err
	}
	if m.expired, err = registerCounter(reg, m.expired); err != nil {
		return nil, err
	}
	if err = reg.Register(m.createDuration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		m.createDuration = existing
	}

	return m, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return c, nil
}

func (m *PrometheusMetrics) RecordHit(entityType string) {
	m.hits.WithLabelValues(entityType).Inc()
}

func (m *PrometheusMetrics) RecordMiss(entityType string) {
	m.misses.WithLabelValues(entityType).Inc()
}

func (m *PrometheusMetrics) RecordBypass(entityType, reason string) {
	m.bypasses.WithLabelValues(entityType, reason).Inc()
}

func (m *PrometheusMetrics) RecordStale(entityType string) {
	m.stale.WithLabelValues(entityType).Inc()
}

func (m *PrometheusMetrics) RecordExpired(entityType string, n int) {
	if n <= 0 {
		return
	}
	m.expired.WithLabelValues(entityType).Add(float64(n))
}

func (m *PrometheusMetrics) RecordCreateDuration(entityType string, d time.Duration) {
	m.createDuration.WithLabelValues(entityType).Observe(d.Seconds())
}
