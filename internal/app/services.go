package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/platform/cache"
	"github.com/odyssey-erp/docflow/internal/reports"
)

// ServiceDeps carries the optional collaborators of the report pipeline.
type ServiceDeps struct {
	Registerer prometheus.Registerer
	Observer   holded.FetchObserver
	Recorder   reports.Recorder
}

// Services bundles the report pipeline and the resources it holds.
type Services struct {
	Reports *reports.Service
	Holded  *holded.Client
	Cache   *cache.Store
	redis   *redis.Client
	logger  *slog.Logger
}

// NewServices wires the upstream client, fetch cache and report service.
// When REDIS_ADDR is set but unreachable the cache falls back to process
// memory.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger, deps ServiceDeps) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := holded.NewClient(holded.Config{
		BaseURL:       cfg.HoldedBaseURL,
		APIKey:        cfg.HoldedAPIKey,
		Timeout:       cfg.HoldedTimeout,
		RatePerSecond: cfg.HoldedRatePerSec,
		SnapshotPath:  cfg.CatalogSnapshotPath,
		Logger:        logger,
		Observer:      deps.Observer,
	})

	var cacheMetrics *cache.Metrics
	if deps.Registerer != nil {
		m, err := cache.NewMetrics(deps.Registerer)
		if err != nil {
			return nil, err
		}
		cacheMetrics = m
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		c, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, caching in memory", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		} else {
			redisClient = c
		}
	}
	store := cache.NewStore(redisClient, cache.Options{
		TTL:         cfg.CacheTTL,
		LoadTimeout: cfg.AppRequestTimeout,
		Metrics:     cacheMetrics,
		Logger:      logger,
	})

	svc := reports.NewService(client, store, reports.Config{
		Location:       cfg.Location(),
		AttributeNames: cfg.AttributeNames(),
		Explode:        cfg.ExplodeOptions(),
	}, logger, deps.Recorder)

	logger.Info("report services ready", slog.String("cache", store.Backend()))
	return &Services{Reports: svc, Holded: client, Cache: store, redis: redisClient, logger: logger}, nil
}

// Close releases the Redis connection, if any.
func (s *Services) Close() {
	if s == nil || s.redis == nil {
		return
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Warn("redis close", slog.Any("error", err))
	}
}
