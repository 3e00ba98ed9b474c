package export

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/odyssey-erp/docflow/internal/reports"
)

// ErrRendererUnavailable is returned when no PDF renderer is configured.
var ErrRendererUnavailable = errors.New("export: pdf renderer not configured")

// Renderer converts an HTML document to PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PDFExporter renders reports to PDF through an HTML renderer.
type PDFExporter struct {
	Renderer Renderer
}

// RenderLineage renders the lineage table.
func (p *PDFExporter) RenderLineage(ctx context.Context, report reports.LineageReport) ([]byte, error) {
	if p == nil || p.Renderer == nil {
		return nil, ErrRendererUnavailable
	}
	rows := make([][]cell, len(report.Rows))
	for i, row := range report.Rows {
		rows[i] = lineageCells(row)
	}
	doc := buildHTML("Document lineage", []string{
		"Status: " + string(report.Status),
		"Timezone: " + report.Timezone,
	}, LineageHeader, rows, nil)
	return p.render(ctx, doc)
}

// RenderBreakdown renders an order breakdown with category rows emphasised.
func (p *PDFExporter) RenderBreakdown(ctx context.Context, report reports.BreakdownReport) ([]byte, error) {
	if p == nil || p.Renderer == nil {
		return nil, ErrRendererUnavailable
	}
	rows := make([][]cell, len(report.Rows))
	classes := make([]string, len(report.Rows))
	for i, row := range report.Rows {
		rows[i] = breakdownCells(row)
		classes[i] = string(row.Kind())
	}
	title := fmt.Sprintf("Order breakdown %s", report.DocNumber)
	doc := buildHTML(title, []string{
		"Client: " + report.Client,
		"Status: " + string(report.Status),
		"Catalog: " + report.CatalogSource,
	}, BreakdownHeader, rows, classes)
	return p.render(ctx, doc)
}

func (p *PDFExporter) render(ctx context.Context, doc string) ([]byte, error) {
	pdf, err := p.Renderer.RenderHTML(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("export: render pdf: %w", err)
	}
	return pdf, nil
}

func buildHTML(title string, meta []string, header []string, rows [][]cell, classes []string) string {
	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"><style>")
	b.WriteString("@page{size:A4 landscape;margin:12mm;}body{font-family:sans-serif;font-size:9px;}h1{font-size:16px;}")
	b.WriteString("table{width:100%;border-collapse:collapse;}th,td{border:1px solid #ddd;padding:3px;}th{background:#f5f5f5;text-align:left;}")
	b.WriteString("td.num{text-align:right;}tr.header td{background:#eef2f7;font-weight:bold;}tr.subtotal td{font-weight:bold;border-top:2px solid #999;}")
	b.WriteString("</style></head><body>")
	b.WriteString("<h1>" + html.EscapeString(title) + "</h1>")
	for _, line := range meta {
		b.WriteString("<p>" + html.EscapeString(line) + "</p>")
	}
	b.WriteString("<table><thead><tr>")
	for _, h := range header {
		b.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for i, row := range rows {
		if classes != nil && classes[i] != "" {
			b.WriteString("<tr class=\"" + html.EscapeString(classes[i]) + "\">")
		} else {
			b.WriteString("<tr>")
		}
		for _, c := range row {
			if c.numeric {
				b.WriteString("<td class=\"num\">")
			} else {
				b.WriteString("<td>")
			}
			b.WriteString(html.EscapeString(c.String()))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}
