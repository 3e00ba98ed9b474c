// Package reportshttp exposes the reports over HTTP.
package reportshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/docflow/internal/platform/httpx"
)

// MountRoutes registers the report endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.exportCap, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/lineage", h.handleLineage)
		r.Get("/orders/{docType}/{id}", h.handleBreakdown)
		r.Get("/catalog", h.handleCatalog)
		r.Post("/cache/invalidate", h.handleInvalidate)

		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			for _, format := range []string{"csv", "xlsx", "pdf"} {
				gr.Get("/lineage/export."+format, h.lineageExport(format))
				gr.Get("/orders/{docType}/{id}/export."+format, h.breakdownExport(format))
			}
		})
	})
}
