package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/docflow/internal/holded"
	jobmetrics "github.com/odyssey-erp/docflow/internal/jobs"
	"github.com/odyssey-erp/docflow/internal/reports"
)

// ReportBuilder builds the reports the warmup pre-populates.
type ReportBuilder interface {
	Lineage(ctx context.Context) (reports.LineageReport, error)
	Breakdown(ctx context.Context, req reports.BreakdownRequest) (reports.BreakdownReport, error)
	Invalidate(ctx context.Context) error
}

// ReportsWarmupJob fills the fetch cache so interactive requests hit it.
type ReportsWarmupJob struct {
	Service ReportBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(service ReportBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock:   time.Now,
	}
}

// Handle processes warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := metricsOr(j.Metrics).Track(TaskReportsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOr(j.Logger, TaskReportsWarmup)
	start := j.now()
	if payload.Fresh {
		if err := j.Service.Invalidate(ctx); err != nil {
			logger.Error("invalidate cache", slog.Any("error", err))
			return err
		}
	}

	lineage, err := j.Service.Lineage(ctx)
	if err != nil {
		logger.Error("warm lineage", slog.Any("error", err))
		return err
	}

	warmed := 0
	for _, id := range latestOrders(lineage, payload.Breakdowns) {
		orderCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := j.Service.Breakdown(orderCtx, reports.BreakdownRequest{DocType: holded.DocTypeSalesOrder, ID: id})
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("warm breakdown", slog.String("order_id", id), slog.Any("error", err))
			continue
		}
		warmed++
	}

	logger.Info("completed reports warmup",
		slog.Int("orders", len(lineage.Rows)),
		slog.Int("breakdowns", warmed),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

// latestOrders returns up to n order ids, most recent order date first.
// Orders without a date come last in input order.
func latestOrders(report reports.LineageReport, n int) []string {
	if n <= 0 || len(report.Rows) == 0 {
		return nil
	}
	rows := make([]int, len(report.Rows))
	for i := range rows {
		rows[i] = i
	}
	dateOf := func(i int) string {
		if d := report.Rows[i].Order.Date; d != nil {
			return d.String()
		}
		return ""
	}
	sort.SliceStable(rows, func(a, b int) bool { return dateOf(rows[a]) > dateOf(rows[b]) })
	if n > len(rows) {
		n = len(rows)
	}
	ids := make([]string, 0, n)
	for _, i := range rows[:n] {
		ids = append(ids, report.Rows[i].OrderID)
	}
	return ids
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
