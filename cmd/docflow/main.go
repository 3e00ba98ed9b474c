package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/docflow/cmd/docflow/cli"
	"github.com/odyssey-erp/docflow/internal/app"
	"github.com/odyssey-erp/docflow/internal/observability"
	"github.com/odyssey-erp/docflow/internal/reports/export"
	reportshttp "github.com/odyssey-erp/docflow/internal/reports/http"
	"github.com/odyssey-erp/docflow/jobs"
	"github.com/odyssey-erp/docflow/report"
)

const usage = `usage: docflow [command]

commands:
  serve                               run the HTTP server (default)
  export lineage|order [flags]        write a report to stdout
  jobs trigger catalog:snapshot|reports:warmup
  jobs stats                          print queue counters
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	if command == "help" || command == "-h" || command == "--help" {
		_, _ = fmt.Fprint(stdout, usage)
		return cli.ExitOK
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitUsage
	}

	switch command {
	case "serve":
		if err := serve(ctx, cfg); err != nil {
			return cli.ExitUsage
		}
		return cli.ExitOK
	case "export":
		return exportCommand(ctx, cfg, args, stdout, stderr)
	case "jobs":
		return jobsCommand(ctx, cfg, args, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "docflow: unknown command %q\n\n%s", command, usage)
		return cli.ExitUsage
	}
}

func serve(ctx context.Context, cfg *app.Config) error {
	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	services, err := app.NewServices(ctx, cfg, logger, app.ServiceDeps{
		Registerer: metrics.Registerer(),
		Observer:   metrics,
		Recorder:   metrics,
	})
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return err
	}
	defer services.Close()

	if err := services.Cache.ListenForInvalidation(ctx, func(version int64) {
		logger.Info("cache invalidated", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	pdfClient := report.NewClient(cfg.GotenbergURL, report.Options{Landscape: true})
	reportsHandler := reportshttp.NewHandler(logger, services.Reports, &export.PDFExporter{Renderer: pdfClient})
	reportsHandler.WithTimeout(cfg.AppRequestTimeout)
	reportsHandler.WithExportLimit(cfg.ExportRatePerMin)

	checks := map[string]app.ReadinessCheck{
		"cache":    services.Cache.Ping,
		"renderer": pdfClient.Ping,
	}

	var jobsHandler *jobs.Handler
	if cfg.RedisAddr != "" {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobsHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ReportsHandler: reportsHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
		Checks:         checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func exportCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.ParseExportArgs(args, stderr)
	if err != nil {
		return cli.ExitUsage
	}
	opts.Stdout = stdout
	opts.Stderr = stderr

	// Logs go to stderr so stdout carries only the report.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	services, err := app.NewServices(ctx, cfg, logger, app.ServiceDeps{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return cli.ExitUsage
	}
	defer services.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.AppRequestTimeout)
	defer cancel()
	return cli.NewExportCLI(services.Reports).ExportCommand(ctx, opts)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if cfg.RedisAddr == "" {
		_, _ = fmt.Fprintln(stderr, "jobs: REDIS_ADDR must be set")
		return cli.ExitUsage
	}
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitUsage
	}
	helper := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = helper.Close() }()

	switch args[0] {
	case "trigger":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return helper.TriggerCommand(ctx, name, stdout, stderr)
	case "stats":
		stats, err := helper.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return cli.ExitUpstream
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return cli.ExitOK
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown subcommand %q\n", args[0])
		return cli.ExitUsage
	}
}
