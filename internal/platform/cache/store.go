// Package cache provides the explicit fetch cache shared by the report
// pipelines. Entries are keyed by endpoint and parameters, expire after a TTL
// and are invalidated wholesale by bumping a version counter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL applies when Options.TTL is unset.
	DefaultTTL = 5 * time.Minute
	// DefaultLoadTimeout bounds a shared load when Options.LoadTimeout is unset.
	DefaultLoadTimeout = 2 * time.Minute

	defaultNamespace = "docflow"
	versionSuffix    = "version"
	bumpChannel      = "docflow.cache.bump"
)

// ErrLoaderRequired is returned when FetchJSON is called without a loader.
var ErrLoaderRequired = errors.New("cache: loader required")

// Loader produces the value to cache on a miss.
type Loader func(ctx context.Context) (any, error)

type uncached struct{ value any }

// NoStore wraps a loaded value that should be returned to callers without
// being cached, such as a fallback served while the upstream is down.
func NoStore(value any) any { return uncached{value: value} }

type loaded struct {
	payload []byte
	store   bool
}

// Options configures a Store.
type Options struct {
	TTL         time.Duration
	LoadTimeout time.Duration
	Namespace   string
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Store caches JSON payloads in Redis when a client is supplied, otherwise in
// process memory.
type Store struct {
	client      *redis.Client
	local       *localBackend
	ttl         time.Duration
	loadTimeout time.Duration
	namespace   string
	metrics     *Metrics
	logger      *slog.Logger
	group       singleflight.Group
}

// NewStore constructs a Store. A nil client selects the in-process backend.
func NewStore(client *redis.Client, opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	loadTimeout := opts.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}
	ns := strings.Trim(strings.TrimSpace(opts.Namespace), ":")
	if ns == "" {
		ns = defaultNamespace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		client:      client,
		ttl:         ttl,
		loadTimeout: loadTimeout,
		namespace:   ns,
		metrics:     opts.Metrics,
		logger:      logger.With(slog.String("component", "cache")),
	}
	if client == nil {
		s.local = newLocalBackend(ttl)
	}
	return s
}

// Backend reports which backend serves the store.
func (s *Store) Backend() string {
	if s.client != nil {
		return "redis"
	}
	return "memory"
}

// Ping checks the Redis connection. The in-process backend is always ready.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

func (s *Store) versionKey() string {
	return s.namespace + ":" + versionSuffix
}

// Version returns the current cache generation, initialising it when missing.
func (s *Store) Version(ctx context.Context) (int64, error) {
	if s.client == nil {
		return s.local.currentVersion(), nil
	}
	ver, err := s.client.Get(ctx, s.versionKey()).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && ver <= 0) {
		// SetNX keeps a concurrent bump from being overwritten.
		if err := s.client.SetNX(ctx, s.versionKey(), 1, 0).Err(); err != nil {
			return 0, fmt.Errorf("cache: init version: %w", err)
		}
		return s.client.Get(ctx, s.versionKey()).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("cache: read version: %w", err)
	}
	return ver, nil
}

// Key composes the versioned key for an endpoint and its parameters.
func (s *Store) Key(ctx context.Context, endpoint string, params ...string) (string, error) {
	ver, err := s.Version(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(params)+3)
	parts = append(parts, s.namespace, endpoint)
	parts = append(parts, params...)
	parts = append(parts, "v"+strconv.FormatInt(ver, 10))
	return strings.Join(parts, ":"), nil
}

// FetchJSON decodes the cached value for (endpoint, params) into dest, calling
// load on a miss. Concurrent misses for the same key share one load. Loader
// errors are returned and never cached. Backend failures degrade to a miss.
func (s *Store) FetchJSON(ctx context.Context, endpoint string, params []string, dest any, load Loader) error {
	if load == nil {
		return ErrLoaderRequired
	}
	key, err := s.Key(ctx, endpoint, params...)
	if err != nil {
		s.logger.Warn("cache key unavailable, loading directly", slog.String("endpoint", endpoint), slog.Any("error", err))
		res, loadErr := s.loadPayload(ctx, endpoint, load)
		if loadErr != nil {
			return loadErr
		}
		return json.Unmarshal(res.payload, dest)
	}

	if payload, ok := s.get(ctx, key); ok {
		s.metrics.hit(endpoint)
		return json.Unmarshal(payload, dest)
	}
	s.metrics.miss(endpoint)

	resultCh := s.group.DoChan(key, func() (any, error) {
		// Callers share this load, so it must outlive whichever one started it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		res, err := s.loadPayload(loadCtx, endpoint, load)
		if err != nil {
			return nil, err
		}
		if res.store {
			s.set(loadCtx, key, res.payload)
		}
		return res.payload, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func (s *Store) loadPayload(ctx context.Context, endpoint string, load Loader) (loaded, error) {
	start := time.Now()
	value, err := load(ctx)
	s.metrics.load(endpoint, time.Since(start))
	if err != nil {
		return loaded{}, err
	}
	res := loaded{store: true}
	if wrapped, ok := value.(uncached); ok {
		value = wrapped.value
		res.store = false
	}
	res.payload, err = json.Marshal(value)
	if err != nil {
		return loaded{}, fmt.Errorf("cache: encode %s: %w", endpoint, err)
	}
	return res, nil
}

// Put stores value under (endpoint, params) for the current version,
// replacing any cached entry.
func (s *Store) Put(ctx context.Context, endpoint string, params []string, value any) error {
	key, err := s.Key(ctx, endpoint, params...)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", endpoint, err)
	}
	s.set(ctx, key, payload)
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool) {
	if s.client == nil {
		return s.local.get(key)
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		return payload, true
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("cache get failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil, false
}

func (s *Store) set(ctx context.Context, key string, payload []byte) {
	if s.client == nil {
		s.local.set(key, payload, s.ttl)
		return
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.Warn("cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Bump invalidates every cached entry by advancing the version. With Redis the
// new version is published so other processes can react.
func (s *Store) Bump(ctx context.Context) (int64, error) {
	s.metrics.bump()
	if s.client == nil {
		return s.local.bump(), nil
	}
	ver, err := s.client.Incr(ctx, s.versionKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: bump version: %w", err)
	}
	if err := s.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, fmt.Errorf("cache: publish bump: %w", err)
	}
	return ver, nil
}

// ListenForInvalidation forwards version bumps published by other processes to
// onBump until ctx is done. It is a no-op for the in-process backend.
func (s *Store) ListenForInvalidation(ctx context.Context, onBump func(version int64)) error {
	if s.client == nil {
		return nil
	}
	pubsub := s.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					s.logger.Warn("ignoring malformed bump", slog.String("payload", msg.Payload))
					continue
				}
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}
