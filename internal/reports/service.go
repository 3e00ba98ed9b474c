// Package reports runs the fetch, build and join pipelines behind the
// lineage, order breakdown and catalog reports.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/docflow/internal/catalog"
	"github.com/odyssey-erp/docflow/internal/explode"
	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/lineage"
	"github.com/odyssey-erp/docflow/internal/platform/cache"
	"github.com/odyssey-erp/docflow/internal/shared"
)

// Source exposes the upstream calls the pipelines need.
type Source interface {
	ListDocuments(ctx context.Context, docType string) ([]holded.Document, error)
	GetDocument(ctx context.Context, docType, id string) (holded.Document, error)
	ListProducts(ctx context.Context) (holded.ProductListing, error)
}

// Recorder counts built reports by status.
type Recorder interface {
	ObserveReport(report, status string)
}

// Config tunes report construction.
type Config struct {
	Location       *time.Location
	AttributeNames catalog.AttributeNames
	Explode        explode.Options
}

// Service coordinates fetching and building reports.
type Service struct {
	source   Source
	cache    *cache.Store
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewService constructs a Service. A nil store is replaced by an in-process one.
func NewService(source Source, store *cache.Store, cfg Config, logger *slog.Logger, recorder Recorder) *Service {
	if store == nil {
		store = cache.NewStore(nil, cache.Options{Logger: logger})
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		if loc, err := time.LoadLocation(lineage.DefaultTimezone); err == nil {
			cfg.Location = loc
		} else {
			cfg.Location = time.UTC
		}
	}
	if cfg.AttributeNames == (catalog.AttributeNames{}) {
		cfg.AttributeNames = catalog.DefaultAttributeNames()
	}
	return &Service{
		source:   source,
		cache:    store,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "reports")),
		recorder: recorder,
		now:      time.Now,
	}
}

// LineageReport is the document lineage table.
type LineageReport struct {
	Rows        []lineage.Row `json:"rows"`
	Status      shared.Status `json:"status"`
	Timezone    string        `json:"timezone"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// BreakdownRequest selects the document to explode. Empty options fall back
// to the service defaults.
type BreakdownRequest struct {
	DocType     string
	ID          string
	Mode        explode.Mode
	Sort        explode.SortPolicy
	GrossWeight explode.GrossWeightSource
}

// BreakdownReport is the itemised breakdown of one order or waybill.
type BreakdownReport struct {
	DocType       string             `json:"docType"`
	DocumentID    string             `json:"documentId"`
	DocNumber     string             `json:"docNumber"`
	Client        string             `json:"client"`
	Date          *shared.Date       `json:"date"`
	Mode          explode.Mode       `json:"mode"`
	Sort          explode.SortPolicy `json:"sort"`
	Rows          []explode.Row      `json:"rows"`
	CatalogSource string             `json:"catalogSource"`
	Status        shared.Status      `json:"status"`
	GeneratedAt   time.Time          `json:"generatedAt"`
}

// CatalogReport is the built product lookup.
type CatalogReport struct {
	Entries     catalog.Catalog `json:"entries"`
	Source      string          `json:"source"`
	Status      shared.Status   `json:"status"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// BreakdownDocTypes lists the document types that carry explodable line items.
var BreakdownDocTypes = []string{holded.DocTypeSalesOrder, holded.DocTypeWaybill}

// Lineage fetches the five document collections and joins them.
func (s *Service) Lineage(ctx context.Context) (LineageReport, error) {
	var in lineage.Input
	targets := []struct {
		docType string
		dest    *[]holded.Document
	}{
		{holded.DocTypeEstimate, &in.Estimates},
		{holded.DocTypeProforma, &in.Proformas},
		{holded.DocTypeSalesOrder, &in.Orders},
		{holded.DocTypeWaybill, &in.Waybills},
		{holded.DocTypeInvoice, &in.Invoices},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			docs, err := s.documents(gctx, target.docType)
			if err != nil {
				return err
			}
			*target.dest = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LineageReport{}, err
	}

	rows := lineage.Build(in, lineage.Options{Location: s.cfg.Location})
	status := shared.StatusComplete
	if len(rows) == 0 {
		status = shared.StatusEmpty
	}
	s.observe("lineage", status)
	return LineageReport{
		Rows:        rows,
		Status:      status,
		Timezone:    s.cfg.Location.String(),
		GeneratedAt: s.now().UTC(),
	}, nil
}

// Breakdown explodes one sales order or waybill against the product catalog.
func (s *Service) Breakdown(ctx context.Context, req BreakdownRequest) (BreakdownReport, error) {
	if req.DocType != holded.DocTypeSalesOrder && req.DocType != holded.DocTypeWaybill {
		return BreakdownReport{}, fmt.Errorf("reports: breakdown of %q: %w", req.DocType, shared.ErrUnsupportedDocType)
	}
	opts := s.cfg.Explode
	if req.Mode != "" {
		opts.Mode = req.Mode
	}
	if req.Sort != "" {
		opts.Sort = req.Sort
	}
	if req.GrossWeight != "" {
		opts.GrossWeight = req.GrossWeight
	}
	if opts.Mode == "" {
		opts.Mode = explode.ModeGrouped
	}
	if opts.Sort == "" {
		opts.Sort = explode.SortAlphabetical
	}

	var (
		doc     holded.Document
		listing holded.ProductListing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, err = s.document(gctx, req.DocType, req.ID)
		return err
	})
	g.Go(func() error {
		var err error
		listing, err = s.products(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return BreakdownReport{}, err
	}

	cat := catalog.Build(listing.Products, s.cfg.AttributeNames)
	rows := explode.Explode(doc, cat, opts)

	status := shared.StatusComplete
	if listing.Status != shared.StatusComplete {
		// A missing catalog degrades the breakdown; the rows are still usable.
		status = shared.StatusDegraded
	}
	if len(rows) == 0 {
		status = shared.Worst(status, shared.StatusEmpty)
	}
	s.observe("breakdown", status)
	return BreakdownReport{
		DocType:       req.DocType,
		DocumentID:    doc.ID,
		DocNumber:     doc.DocNumber,
		Client:        doc.ContactName,
		Date:          shared.DateFromUnix(doc.Date, s.cfg.Location),
		Mode:          opts.Mode,
		Sort:          opts.Sort,
		Rows:          rows,
		CatalogSource: listing.Source,
		Status:        status,
		GeneratedAt:   s.now().UTC(),
	}, nil
}

// Catalog builds the product lookup from the current listing.
func (s *Service) Catalog(ctx context.Context) (CatalogReport, error) {
	listing, err := s.products(ctx)
	if err != nil {
		return CatalogReport{}, err
	}
	return s.catalogReport(listing), nil
}

// RefreshCatalog fetches the product listing directly from the source, which
// persists the snapshot, and replaces the cached listing when it is complete.
func (s *Service) RefreshCatalog(ctx context.Context) (CatalogReport, error) {
	listing, err := s.source.ListProducts(ctx)
	if err != nil {
		return CatalogReport{}, fmt.Errorf("reports: refresh products: %w", err)
	}
	if listing.Status == shared.StatusComplete {
		if err := s.cache.Put(ctx, "products", nil, listing); err != nil {
			s.logger.Warn("cache refreshed products", slog.Any("error", err))
		}
	}
	return s.catalogReport(listing), nil
}

// Invalidate drops every cached fetch result.
func (s *Service) Invalidate(ctx context.Context) error {
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return fmt.Errorf("reports: invalidate cache: %w", err)
	}
	s.logger.Info("cache invalidated", slog.Int64("version", ver))
	return nil
}

func (s *Service) catalogReport(listing holded.ProductListing) CatalogReport {
	entries := catalog.Build(listing.Products, s.cfg.AttributeNames)
	status := listing.Status
	if len(entries) == 0 {
		status = shared.StatusEmpty
	}
	s.observe("catalog", status)
	return CatalogReport{
		Entries:     entries,
		Source:      listing.Source,
		Status:      status,
		GeneratedAt: s.now().UTC(),
	}
}

func (s *Service) documents(ctx context.Context, docType string) ([]holded.Document, error) {
	var docs []holded.Document
	err := s.cache.FetchJSON(ctx, "documents", []string{docType}, &docs, func(ctx context.Context) (any, error) {
		return s.source.ListDocuments(ctx, docType)
	})
	if err != nil {
		return nil, unavailable("documents/"+docType, err)
	}
	return docs, nil
}

func (s *Service) document(ctx context.Context, docType, id string) (holded.Document, error) {
	var doc holded.Document
	err := s.cache.FetchJSON(ctx, "document", []string{docType, id}, &doc, func(ctx context.Context) (any, error) {
		return s.source.GetDocument(ctx, docType, id)
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return holded.Document{}, fmt.Errorf("reports: %s %q: %w", docType, id, err)
		}
		return holded.Document{}, unavailable("documents/"+docType+"/"+id, err)
	}
	return doc, nil
}

func (s *Service) products(ctx context.Context) (holded.ProductListing, error) {
	var listing holded.ProductListing
	err := s.cache.FetchJSON(ctx, "products", nil, &listing, func(ctx context.Context) (any, error) {
		listing, err := s.source.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		if listing.Status != shared.StatusComplete {
			return cache.NoStore(listing), nil
		}
		return listing, nil
	})
	if err != nil {
		return holded.ProductListing{}, fmt.Errorf("reports: products: %w", err)
	}
	if listing.Status != shared.StatusComplete {
		s.logger.Warn("catalog degraded", slog.String("source", listing.Source), slog.Int("products", len(listing.Products)))
	}
	return listing, nil
}

func (s *Service) observe(report string, status shared.Status) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveReport(report, string(status))
}

func unavailable(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("reports: %s: %w", what, err)
	}
	return fmt.Errorf("reports: %s: %w: %w", what, shared.ErrSourceUnavailable, err)
}
