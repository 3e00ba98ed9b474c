// Package cli implements the docflow operator subcommands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/docflow/internal/explode"
	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/reports"
	"github.com/odyssey-erp/docflow/internal/reports/export"
	"github.com/odyssey-erp/docflow/internal/shared"
)

// Exit codes returned by the export command.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitUpstream = 2
	ExitEmpty    = 10
)

// ReportService builds the reports the CLI can export.
type ReportService interface {
	Lineage(ctx context.Context) (reports.LineageReport, error)
	Breakdown(ctx context.Context, req reports.BreakdownRequest) (reports.BreakdownReport, error)
}

// ExportCLI writes reports to a stream.
type ExportCLI struct {
	service ReportService
}

// NewExportCLI constructs the export helper.
func NewExportCLI(service ReportService) *ExportCLI {
	return &ExportCLI{service: service}
}

// ExportOptions defines available flags for the export command.
type ExportOptions struct {
	Report  string
	Format  string
	DocType string
	ID      string
	Mode    string
	Sort    string
	Weight  string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ParseExportArgs reads `export lineage|order [flags]` arguments. The report
// name may come before or after the flags.
func ParseExportArgs(args []string, stderr io.Writer) (ExportOptions, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := ExportOptions{}
	fs.StringVar(&opts.Format, "format", "csv", "output format: csv, json or xlsx")
	fs.StringVar(&opts.DocType, "doc-type", holded.DocTypeSalesOrder, "document type for order exports: salesorder or waybill")
	fs.StringVar(&opts.ID, "id", "", "document id for order exports")
	fs.StringVar(&opts.Mode, "mode", "", "breakdown mode: raw or grouped")
	fs.StringVar(&opts.Sort, "sort", "", "category order: alpha or subtotal")
	fs.StringVar(&opts.Weight, "weight", "", "gross weight source: catalog or line")

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.Report = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return ExportOptions{}, err
	}
	if opts.Report == "" && fs.NArg() > 0 {
		opts.Report = fs.Arg(0)
	}
	return opts, nil
}

// ExportCommand builds the requested report and writes it to Stdout.
func (c *ExportCLI) ExportCommand(ctx context.Context, opts ExportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" && format != "xlsx" {
		_, _ = fmt.Fprintf(opts.Stderr, "export: unsupported format %q (expected csv, json or xlsx)\n", opts.Format)
		return ExitUsage
	}

	switch strings.ToLower(strings.TrimSpace(opts.Report)) {
	case "lineage":
		return c.exportLineage(ctx, format, opts)
	case "order":
		return c.exportOrder(ctx, format, opts)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "export: unknown report %q (expected lineage or order)\n", opts.Report)
		return ExitUsage
	}
}

func (c *ExportCLI) exportLineage(ctx context.Context, format string, opts ExportOptions) int {
	report, err := c.service.Lineage(ctx)
	if err != nil {
		return upstreamFailure(opts.Stderr, err)
	}
	var writeErr error
	switch format {
	case "json":
		writeErr = json.NewEncoder(opts.Stdout).Encode(report)
	case "xlsx":
		writeErr = export.WriteLineageXLSX(opts.Stdout, report)
	default:
		writeErr = export.WriteLineageCSV(opts.Stdout, report)
	}
	return finish(opts.Stderr, report.Status, writeErr)
}

func (c *ExportCLI) exportOrder(ctx context.Context, format string, opts ExportOptions) int {
	req, err := breakdownRequest(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "export: %v\n", err)
		return ExitUsage
	}
	report, err := c.service.Breakdown(ctx, req)
	if err != nil {
		if errors.Is(err, shared.ErrUnsupportedDocType) {
			_, _ = fmt.Fprintf(opts.Stderr, "export: %v\n", err)
			return ExitUsage
		}
		return upstreamFailure(opts.Stderr, err)
	}
	var writeErr error
	switch format {
	case "json":
		writeErr = json.NewEncoder(opts.Stdout).Encode(report)
	case "xlsx":
		writeErr = export.WriteBreakdownXLSX(opts.Stdout, report)
	default:
		writeErr = export.WriteBreakdownCSV(opts.Stdout, report)
	}
	return finish(opts.Stderr, report.Status, writeErr)
}

func breakdownRequest(opts ExportOptions) (reports.BreakdownRequest, error) {
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		return reports.BreakdownRequest{}, errors.New("--id is required for order exports")
	}
	mode, err := explode.ParseMode(opts.Mode)
	if err != nil {
		return reports.BreakdownRequest{}, err
	}
	req := reports.BreakdownRequest{
		DocType: strings.ToLower(strings.TrimSpace(opts.DocType)),
		ID:      id,
		Mode:    mode,
	}
	// Empty sort and weight keep the service defaults.
	if strings.TrimSpace(opts.Sort) != "" {
		if req.Sort, err = explode.ParseSortPolicy(opts.Sort); err != nil {
			return reports.BreakdownRequest{}, err
		}
	}
	if strings.TrimSpace(opts.Weight) != "" {
		if req.GrossWeight, err = explode.ParseGrossWeightSource(opts.Weight); err != nil {
			return reports.BreakdownRequest{}, err
		}
	}
	return req, nil
}

func upstreamFailure(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
	return ExitUpstream
}

func finish(stderr io.Writer, status shared.Status, writeErr error) int {
	if writeErr != nil {
		_, _ = fmt.Fprintf(stderr, "export: write output: %v\n", writeErr)
		return ExitUsage
	}
	switch status {
	case shared.StatusEmpty:
		_, _ = fmt.Fprintln(stderr, "export: report is empty")
		return ExitEmpty
	case shared.StatusDegraded:
		_, _ = fmt.Fprintln(stderr, "export: warning: product catalog served from fallback")
	}
	return ExitOK
}
