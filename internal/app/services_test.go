package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docflow/internal/shared"
)

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	return &Config{
		HoldedAPIKey:        "k",
		HoldedBaseURL:       baseURL,
		HoldedTimeout:       5 * time.Second,
		CatalogSnapshotPath: filepath.Join(t.TempDir(), "snapshot.json"),
		ReportTimezone:      "Europe/Madrid",
		CategorySort:        "alpha",
		GrossWeightSource:   "catalog",
		AttrOrigin:          "Origen",
		AttrHSCode:          "Código HS",
		AttrSubcategory:     "Línea de producto",
		CacheTTL:            time.Minute,
	}
}

func TestNewServicesServesLineageThroughRedis(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "k", r.Header.Get("key"))
		var docs []map[string]any
		if r.URL.Path == "/documents/salesorder" {
			docs = []map[string]any{{"id": "SO1", "docNumber": "PED-1", "contactName": "Acme", "total": 10}}
		}
		_ = json.NewEncoder(w).Encode(docs)
	}))
	defer upstream.Close()

	mr := miniredis.RunT(t)
	cfg := testConfig(t, upstream.URL)
	cfg.RedisAddr = mr.Addr()

	svcs, err := NewServices(context.Background(), cfg, nil, ServiceDeps{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer svcs.Close()
	assert.Equal(t, "redis", svcs.Cache.Backend())

	report, err := svcs.Reports.Lineage(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, shared.StatusComplete, report.Status)
	first := calls.Load()

	_, err = svcs.Reports.Lineage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, calls.Load())
}

func TestNewServicesFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.RedisAddr = addr
	svcs, err := NewServices(context.Background(), cfg, nil, ServiceDeps{})
	require.NoError(t, err)
	defer svcs.Close()
	assert.Equal(t, "memory", svcs.Cache.Backend())
}
