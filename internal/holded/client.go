package holded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/odyssey-erp/docflow/internal/shared"
)

const (
	// DefaultBaseURL is the public invoicing API root.
	DefaultBaseURL = "https://api.holded.com/api/invoicing/v1"
	// DefaultPageSize is the product listing page size.
	DefaultPageSize = 100
	// DefaultMaxAttempts bounds retries of a product listing page.
	DefaultMaxAttempts = 3

	defaultTimeout = 30 * time.Second
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("holded: %s returned status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("holded: %s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Is maps 404 responses onto shared.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == shared.ErrNotFound && e.Code == http.StatusNotFound
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// FetchObserver records the outcome of upstream calls.
type FetchObserver interface {
	ObserveFetch(endpoint, outcome string, elapsed time.Duration)
}

// Config holds client settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	PageSize      int
	MaxAttempts   int
	SnapshotPath  string
	HTTPClient    *http.Client
	Logger        *slog.Logger
	Observer      FetchObserver
}

// Client fetches documents and products from the invoicing API.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pageSize    int
	maxAttempts int
	snapshot    *SnapshotStore
	logger      *slog.Logger
	observer    FetchObserver
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a client from cfg, applying defaults.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, 1),
		pageSize:    pageSize,
		maxAttempts: attempts,
		snapshot:    NewSnapshotStore(cfg.SnapshotPath),
		logger:      logger.With(slog.String("component", "holded")),
		observer:    cfg.Observer,
	}
}

// WithSleep replaces the wait between product page attempts, for testing.
func (c *Client) WithSleep(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		c.sleep = fn
	}
}

// ListDocuments fetches every document of docType in a single attempt.
func (c *Client) ListDocuments(ctx context.Context, docType string) ([]Document, error) {
	if !IsDocType(docType) {
		return nil, fmt.Errorf("holded: %w: %q", shared.ErrUnsupportedDocType, docType)
	}
	var docs []Document
	if err := c.getJSON(ctx, "documents/"+docType, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument fetches one document.
func (c *Client) GetDocument(ctx context.Context, docType, id string) (Document, error) {
	if !IsDocType(docType) {
		return Document{}, fmt.Errorf("holded: %w: %q", shared.ErrUnsupportedDocType, docType)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, fmt.Errorf("holded: document id required: %w", shared.ErrNotFound)
	}
	var doc Document
	if err := c.getJSON(ctx, "documents/"+docType+"/"+url.PathEscape(id), nil, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListProducts walks the paginated product listing. Each page is retried with
// exponential backoff; once retries are exhausted the persisted snapshot is
// used, and failing that an empty listing is returned. Only context
// cancellation is reported as an error.
func (c *Client) ListProducts(ctx context.Context) (ProductListing, error) {
	products, err := c.fetchAllProducts(ctx)
	if err == nil {
		if saveErr := c.snapshot.Save(products); saveErr != nil {
			c.logger.Warn("persist product snapshot", slog.Any("error", saveErr))
		}
		return ProductListing{Products: products, Source: SourceAPI, Status: shared.StatusComplete}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ProductListing{}, ctxErr
	}
	c.logger.Warn("product listing unavailable, trying snapshot", slog.Any("error", err))

	cached, snapErr := c.snapshot.Load()
	if snapErr == nil {
		c.logger.Info("serving product snapshot", slog.Int("products", len(cached)))
		return ProductListing{Products: cached, Source: SourceSnapshot, Status: shared.StatusDegraded}, nil
	}
	if !errors.Is(snapErr, ErrNoSnapshot) {
		c.logger.Warn("load product snapshot", slog.Any("error", snapErr))
	}
	return ProductListing{Products: []Product{}, Source: SourceNone, Status: shared.StatusEmpty}, nil
}

func (c *Client) fetchAllProducts(ctx context.Context) ([]Product, error) {
	all := make([]Product, 0, c.pageSize)
	for page := 1; ; page++ {
		batch, err := c.fetchProductPage(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			return all, nil
		}
	}
}

func (c *Client) fetchProductPage(ctx context.Context, page int) ([]Product, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))

	var batch []Product
	attempt := 0
	operation := func() error {
		attempt++
		batch = nil
		err := c.getJSON(ctx, "products", query, &batch)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		c.logger.Warn("product page failed, backing off",
			slog.Int("page", page),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(pageBackOff(), uint64(c.maxAttempts-1)), ctx)
	var timer backoff.Timer
	if c.sleep != nil {
		timer = &sleepTimer{ctx: ctx, sleep: c.sleep, ch: make(chan time.Time, 1)}
	}
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("holded: products page %d after %d attempts: %w", page, attempt, err)
	}
	return batch, nil
}

// pageBackOff waits 1s, 2s, 4s... between attempts, without jitter.
func pageBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	start := time.Now()
	err := c.do(ctx, path, endpoint, dest)
	c.observe(path, err, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, path, endpoint string, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("holded: get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return &StatusError{Endpoint: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("holded: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) observe(path string, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	endpoint := path
	if strings.HasPrefix(path, "documents/") {
		parts := strings.SplitN(path, "/", 3)
		endpoint = parts[0] + "/" + parts[1]
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.observer.ObserveFetch(endpoint, outcome, elapsed)
}

// sleepTimer adapts a sleep function to backoff.Timer.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	ch    chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	go func() {
		if err := t.sleep(t.ctx, d); err == nil {
			t.ch <- time.Now()
		}
	}()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.ch }
