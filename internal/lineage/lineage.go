// Package lineage reconciles the estimate → proforma → order → waybill → invoice chain.
package lineage

import (
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/shared"
)

// DefaultTimezone is the zone document dates are reported in.
const DefaultTimezone = "Europe/Madrid"

// Input carries the five document collections.
type Input struct {
	Estimates []holded.Document
	Proformas []holded.Document
	Orders    []holded.Document
	Waybills  []holded.Document
	Invoices  []holded.Document
}

// Options tunes the builder.
type Options struct {
	Location *time.Location
}

// Stage is one column pair of the lineage table. The order stage always carries
// the order's date, but its document number is only set when the order is
// reached through the estimate chain.
type Stage struct {
	Date      *shared.Date `json:"date"`
	DocNumber *string      `json:"docNumber"`
}

// Row describes the derivation chain of one sales order. OrderDocNumber is the
// order's own number, present whether or not the order is linked to an estimate.
type Row struct {
	OrderID            string              `json:"orderId"`
	Client             string              `json:"client"`
	Total              decimal.NullDecimal `json:"total"`
	Estimate           Stage               `json:"estimate"`
	EstimateToProforma *int                `json:"estimateToProforma"`
	Proforma           Stage               `json:"proforma"`
	ProformaToOrder    *int                `json:"proformaToOrder"`
	Order              Stage               `json:"order"`
	OrderToWaybill     *int                `json:"orderToWaybill"`
	Waybill            Stage               `json:"waybill"`
	WaybillToInvoice   *int                `json:"waybillToInvoice"`
	Invoice            Stage               `json:"invoice"`
	OrderDocNumber     string              `json:"orderDocNumber"`
}

// index keeps the first document per key.
type index map[string]holded.Document

func (ix index) add(key string, doc holded.Document) {
	if key == "" {
		return
	}
	if _, ok := ix[key]; ok {
		return
	}
	ix[key] = doc
}

func (ix index) get(key string) (holded.Document, bool) {
	if key == "" {
		return holded.Document{}, false
	}
	doc, ok := ix[key]
	return doc, ok
}

func byID(docs []holded.Document) index {
	ix := make(index, len(docs))
	for _, d := range docs {
		ix.add(d.ID, d)
	}
	return ix
}

// byIDFrom indexes documents generated from docType, keyed by their own id.
func byIDFrom(docs []holded.Document, docType string) index {
	ix := make(index, len(docs))
	for _, d := range docs {
		if d.From == nil || d.From.DocType != docType {
			continue
		}
		ix.add(d.ID, d)
	}
	return ix
}

// byParent indexes documents by the id they were generated from. An empty
// docType accepts any upstream type.
func byParent(docs []holded.Document, docType string) index {
	ix := make(index, len(docs))
	for _, d := range docs {
		if d.From == nil {
			continue
		}
		if docType != "" && d.From.DocType != docType {
			continue
		}
		ix.add(d.From.ID, d)
	}
	return ix
}

// Build produces one row per sales order, in input order. Missing stages leave
// their date, document number and adjacent deltas nil.
func Build(in Input, opts Options) []Row {
	loc := opts.Location
	if loc == nil {
		loc = defaultLocation()
	}

	estimates := byID(in.Estimates)
	proformas := byIDFrom(in.Proformas, holded.DocTypeEstimate)
	waybills := byParent(in.Waybills, "")
	invoices := byParent(in.Invoices, holded.DocTypeWaybill)

	rows := make([]Row, 0, len(in.Orders))
	for _, order := range in.Orders {
		row := Row{
			OrderID:        order.ID,
			Client:         order.ContactName,
			Total:          shared.Some(decimal.NewFromFloat(order.Total).Round(shared.MoneyPlaces)),
			Order:          Stage{Date: shared.DateFromUnix(order.Date, loc)},
			OrderDocNumber: order.DocNumber,
		}

		// The chain is anchored on estimates: a proforma without a known
		// estimate does not join.
		if order.From != nil && order.From.DocType == holded.DocTypeProforma {
			if proforma, ok := proformas.get(order.From.ID); ok {
				if estimate, ok := estimates.get(proforma.From.ID); ok {
					row.Estimate = stageOf(estimate, loc)
					row.Proforma = stageOf(proforma, loc)
					row.Order.DocNumber = docNumberOf(order)
				}
			}
		}
		if waybill, ok := waybills.get(order.ID); ok {
			row.Waybill = stageOf(waybill, loc)
			if invoice, ok := invoices.get(waybill.ID); ok {
				row.Invoice = stageOf(invoice, loc)
			}
		}

		row.EstimateToProforma = shared.DaysBetween(row.Estimate.Date, row.Proforma.Date)
		row.ProformaToOrder = shared.DaysBetween(row.Proforma.Date, row.Order.Date)
		row.OrderToWaybill = shared.DaysBetween(row.Order.Date, row.Waybill.Date)
		row.WaybillToInvoice = shared.DaysBetween(row.Waybill.Date, row.Invoice.Date)
		rows = append(rows, row)
	}
	return rows
}

func stageOf(doc holded.Document, loc *time.Location) Stage {
	return Stage{Date: shared.DateFromUnix(doc.Date, loc), DocNumber: docNumberOf(doc)}
}

func docNumberOf(doc holded.Document) *string {
	if doc.DocNumber == "" {
		return nil
	}
	number := doc.DocNumber
	return &number
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
