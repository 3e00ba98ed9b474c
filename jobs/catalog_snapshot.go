package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/docflow/internal/jobs"
	"github.com/odyssey-erp/docflow/internal/reports"
	"github.com/odyssey-erp/docflow/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CatalogRefresher reloads the product catalog from upstream.
type CatalogRefresher interface {
	RefreshCatalog(ctx context.Context) (reports.CatalogReport, error)
	Invalidate(ctx context.Context) error
}

// CatalogSnapshotJob refreshes the product listing, which persists the
// snapshot used when the API is down.
type CatalogSnapshotJob struct {
	Service CatalogRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogSnapshotJob wires dependencies for the snapshot handler.
func NewCatalogSnapshotJob(service CatalogRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSnapshotJob {
	return &CatalogSnapshotJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes catalog snapshot tasks.
func (j *CatalogSnapshotJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("catalog snapshot: handler not configured")
	}
	var payload CatalogSnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := metricsOr(j.Metrics).Track(TaskCatalogSnapshot)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOr(j.Logger, TaskCatalogSnapshot)
	if payload.Invalidate {
		if err := j.Service.Invalidate(ctx); err != nil {
			logger.Warn("invalidate cache before refresh", slog.Any("error", err))
		}
	}
	report, err := j.Service.RefreshCatalog(ctx)
	if err != nil {
		logger.Error("refresh catalog", slog.Any("error", err))
		return err
	}
	metricsOr(j.Metrics).SetCatalogSize(report.Source, len(report.Entries))

	if report.Status != shared.StatusComplete {
		// The API did not answer; keep the previous cache and retry later.
		logger.Warn("catalog refresh served fallback",
			slog.String("source", report.Source),
			slog.String("status", report.Status.String()))
		return errors.New("catalog snapshot: upstream listing unavailable")
	}
	logger.Info("catalog refreshed", slog.Int("products", len(report.Entries)))
	return nil
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOr(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
