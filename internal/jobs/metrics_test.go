package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("catalog:snapshot").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("catalog:snapshot").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:snapshot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:snapshot", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("catalog:snapshot")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestSetCatalogSizeKeepsLatestSource(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetCatalogSize("api", 120)
	m.SetCatalogSize("snapshot", 80)

	assert.Equal(t, 1, testutil.CollectAndCount(m.catalog))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.catalog.WithLabelValues("snapshot")))
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	second.Track("reports:warmup").End(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.runs.WithLabelValues("reports:warmup", "success")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetCatalogSize("api", 1)
	err := errors.New("x")
	assert.Equal(t, err, m.Track("job").End(err))
}
