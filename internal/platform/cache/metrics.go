package cache

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes cache effectiveness per endpoint.
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	loads  *prometheus.HistogramVec
	bumps  prometheus.Counter
}

// NewMetrics registers the cache collectors. Collectors that are already
// registered are reused so repeated construction in tests is safe.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_fetch_cache_hits_total",
			Help: "Number of fetch cache hits.",
		}, []string{"endpoint"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_fetch_cache_miss_total",
			Help: "Number of fetch cache misses.",
		}, []string{"endpoint"}),
		loads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_fetch_cache_load_duration_seconds",
			Help:    "Duration of loads performed on cache misses.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		bumps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_fetch_cache_invalidations_total",
			Help: "Number of explicit cache invalidations.",
		}),
	}
	var err error
	m.hits, err = registerCounterVec(reg, m.hits)
	if err != nil {
		return nil, err
	}
	m.misses, err = registerCounterVec(reg, m.misses)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(m.loads); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		m.loads = existing
	}
	if err := reg.Register(m.bumps); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, err
		}
		m.bumps = existing
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return c, nil
}

func (m *Metrics) hit(endpoint string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) miss(endpoint string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) load(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) bump() {
	if m == nil {
		return
	}
	m.bumps.Inc()
}
