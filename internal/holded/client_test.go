package holded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docflow/internal/shared"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

type stubObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (s *stubObserver) ObserveFetch(endpoint, outcome string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomes == nil {
		s.outcomes = map[string]int{}
	}
	s.outcomes[endpoint+":"+outcome]++
}

func newTestClient(t *testing.T, srv *httptest.Server, snapshotPath string) (*Client, *recordingSleeper) {
	t.Helper()
	client := NewClient(Config{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		PageSize:     2,
		SnapshotPath: snapshotPath,
	})
	sleeper := &recordingSleeper{}
	client.WithSleep(sleeper.Sleep)
	return client, sleeper
}

func productsPage(n, offset int) []Product {
	out := make([]Product, n)
	for i := range out {
		out[i] = Product{ID: fmt.Sprintf("p%d", offset+i)}
	}
	return out
}

func TestListDocumentsSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/salesorder", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("accept"))
		_, _ = w.Write([]byte(`[{"id":"SO1","docNumber":"P-1","date":1700000000,"from":{"id":"PF1","docType":"proform"}}]`))
	}))
	defer srv.Close()

	observer := &stubObserver{}
	client := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Observer: observer})
	docs, err := client.ListDocuments(context.Background(), DocTypeSalesOrder)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "PF1", docs[0].From.ID)
	assert.Equal(t, 1, observer.outcomes["documents/salesorder:success"])
}

func TestListDocumentsSingleAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.ListDocuments(context.Background(), DocTypeInvoice)
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, 1, calls)
}

func TestListDocumentsRejectsUnknownType(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := client.ListDocuments(context.Background(), "purchase")
	assert.ErrorIs(t, err, shared.ErrUnsupportedDocType)
}

func TestGetDocumentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/waybill/W%201", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.GetDocument(context.Background(), DocTypeWaybill, "W 1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListProductsPaginatesUntilShortPage(t *testing.T) {
	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages = append(pages, page)
		var batch []Product
		switch page {
		case 1, 2:
			batch = productsPage(2, (page-1)*2)
		default:
			batch = productsPage(1, 4)
		}
		_ = json.NewEncoder(w).Encode(batch)
	}))
	defer srv.Close()

	snapshot := filepath.Join(t.TempDir(), "products.json")
	client, _ := newTestClient(t, srv, snapshot)
	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.Len(t, listing.Products, 5)
	assert.Equal(t, SourceAPI, listing.Source)
	assert.Equal(t, shared.StatusComplete, listing.Status)

	persisted, err := NewSnapshotStore(snapshot).Load()
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestListProductsStopsOnEmptyPage(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "1" {
			_ = json.NewEncoder(w).Encode(productsPage(2, 0))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv, "")
	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing.Products, 2)
	assert.Equal(t, 2, calls)
}

func TestListProductsRetriesWithExponentialBackoff(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(productsPage(1, 0))
	}))
	defer srv.Close()

	client, sleeper := newTestClient(t, srv, "")
	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, shared.StatusComplete, listing.Status)
}

func TestListProductsFallsBackToSnapshot(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	snapshot := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, NewSnapshotStore(snapshot).Save([]Product{{ID: "cached"}}))

	client, sleeper := newTestClient(t, srv, snapshot)
	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Len(t, sleeper.delays, DefaultMaxAttempts-1)
	assert.Equal(t, SourceSnapshot, listing.Source)
	assert.Equal(t, shared.StatusDegraded, listing.Status)
	require.Len(t, listing.Products, 1)
	assert.Equal(t, "cached", listing.Products[0].ID)
}

func TestListProductsEmptyWithoutSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv, filepath.Join(t.TempDir(), "missing.json"))
	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceNone, listing.Source)
	assert.Equal(t, shared.StatusEmpty, listing.Status)
	assert.Empty(t, listing.Products)
}

func TestListProductsDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, sleeper := newTestClient(t, srv, "")
	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, shared.StatusEmpty, listing.Status)
}

func TestListProductsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client, _ := newTestClient(t, srv, "")
	_, err := client.ListProducts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListProductsStopsRetryingWhenCancelledDuringBackoff(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, _ := newTestClient(t, srv, "")
	client.WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := client.ListProducts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
