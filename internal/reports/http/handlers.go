package reportshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/docflow/internal/explode"
	"github.com/odyssey-erp/docflow/internal/platform/httpx"
	"github.com/odyssey-erp/docflow/internal/reports"
	"github.com/odyssey-erp/docflow/internal/reports/export"
)

const (
	defaultRequestTimeout = 2 * time.Minute

	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Service is the report pipeline used by the handler.
type Service interface {
	Lineage(ctx context.Context) (reports.LineageReport, error)
	Breakdown(ctx context.Context, req reports.BreakdownRequest) (reports.BreakdownReport, error)
	Catalog(ctx context.Context) (reports.CatalogReport, error)
	Invalidate(ctx context.Context) error
}

// PDFService renders reports to PDF bytes.
type PDFService interface {
	RenderLineage(ctx context.Context, report reports.LineageReport) ([]byte, error)
	RenderBreakdown(ctx context.Context, report reports.BreakdownReport) ([]byte, error)
}

// Handler serves the report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	pdf       PDFService
	validate  *validator.Validate
	timeout   time.Duration
	now       func() time.Time
	exportCap int
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, service Service, pdf PDFService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		pdf:       pdf,
		validate:  validator.New(),
		timeout:   defaultRequestTimeout,
		now:       time.Now,
		exportCap: 10,
	}
}

// WithTimeout bounds each report build.
func (h *Handler) WithTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// WithExportLimit sets the per-client export budget per minute.
func (h *Handler) WithExportLimit(n int) {
	if n > 0 {
		h.exportCap = n
	}
}

type breakdownQuery struct {
	DocType string `validate:"required,oneof=salesorder waybill"`
	ID      string `validate:"required,max=64,printascii"`
	Mode    string `validate:"omitempty,oneof=raw grouped"`
	Sort    string `validate:"omitempty,oneof=alpha subtotal"`
	Weight  string `validate:"omitempty,oneof=catalog line"`
}

func (h *Handler) parseBreakdown(r *http.Request) (reports.BreakdownRequest, error) {
	q := breakdownQuery{
		DocType: strings.TrimSpace(chi.URLParam(r, "docType")),
		ID:      strings.TrimSpace(chi.URLParam(r, "id")),
		Mode:    strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode"))),
		Sort:    strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sort"))),
		Weight:  strings.ToLower(strings.TrimSpace(r.URL.Query().Get("weight"))),
	}
	if err := h.validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return reports.BreakdownRequest{}, fmt.Errorf("%w: %s failed %q", httpx.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return reports.BreakdownRequest{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return reports.BreakdownRequest{
		DocType:     q.DocType,
		ID:          q.ID,
		Mode:        explode.Mode(q.Mode),
		Sort:        explode.SortPolicy(q.Sort),
		GrossWeight: explode.GrossWeightSource(q.Weight),
	}, nil
}

func (h *Handler) handleLineage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Lineage(ctx)
	if err != nil {
		h.fail(w, "build lineage", err)
		return
	}
	w.Header().Set("X-Report-Status", string(report.Status))
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) lineageExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		report, err := h.service.Lineage(ctx)
		if err != nil {
			h.fail(w, "build lineage", err)
			return
		}
		name := "lineage-" + h.now().UTC().Format("20060102")
		h.writeExport(w, format, name, report.Status, func(out io.Writer) error {
			switch format {
			case "csv":
				return export.WriteLineageCSV(out, report)
			case "xlsx":
				return export.WriteLineageXLSX(out, report)
			}
			pdf, err := h.renderPDF(func(p PDFService) ([]byte, error) { return p.RenderLineage(ctx, report) })
			if err != nil {
				return err
			}
			_, err = out.Write(pdf)
			return err
		})
	}
}

func (h *Handler) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseBreakdown(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Breakdown(ctx, req)
	if err != nil {
		h.fail(w, "build breakdown", err)
		return
	}
	w.Header().Set("X-Report-Status", string(report.Status))
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) breakdownExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.parseBreakdown(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		report, err := h.service.Breakdown(ctx, req)
		if err != nil {
			h.fail(w, "build breakdown", err)
			return
		}
		number := report.DocNumber
		if number == "" {
			number = req.ID
		}
		name := req.DocType + "-" + number
		h.writeExport(w, format, name, report.Status, func(out io.Writer) error {
			switch format {
			case "csv":
				return export.WriteBreakdownCSV(out, report)
			case "xlsx":
				return export.WriteBreakdownXLSX(out, report)
			}
			pdf, err := h.renderPDF(func(p PDFService) ([]byte, error) { return p.RenderBreakdown(ctx, report) })
			if err != nil {
				return err
			}
			_, err = out.Write(pdf)
			return err
		})
	}
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Catalog(ctx)
	if err != nil {
		h.fail(w, "build catalog", err)
		return
	}
	w.Header().Set("X-Report-Status", string(report.Status))
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.fail(w, "invalidate cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renderPDF(fn func(PDFService) ([]byte, error)) ([]byte, error) {
	if h.pdf == nil {
		return nil, export.ErrRendererUnavailable
	}
	return fn(h.pdf)
}

// writeExport buffers the export so failures still produce a problem response.
func (h *Handler) writeExport(w http.ResponseWriter, format, name string, status fmt.Stringer, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		if errors.Is(err, export.ErrRendererUnavailable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "PDF Export Unavailable", "no PDF renderer is configured")
			return
		}
		h.fail(w, "write "+format+" export", err)
		return
	}
	contentType := contentTypePDF
	switch format {
	case "csv":
		contentType = contentTypeCSV
	case "xlsx":
		contentType = contentTypeXLSX
	}
	w.Header().Set("X-Report-Status", status.String())
	httpx.Attachment(w, contentType, unsafeFilename.ReplaceAllString(name, "_")+"."+format, buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Info(action+" cancelled by client", slog.Any("error", err))
		return
	}
	h.logger.Error(action, slog.Any("error", err))
	httpx.RespondError(w, err)
}
