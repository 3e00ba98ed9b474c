// Package export serialises reports as CSV, XLSX and PDF.
package export

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docflow/internal/explode"
	"github.com/odyssey-erp/docflow/internal/lineage"
	"github.com/odyssey-erp/docflow/internal/shared"
)

// LineageHeader lists the lineage export columns.
var LineageHeader = []string{
	"Order ID", "Client", "Total",
	"Estimate Date", "Estimate to Proforma (days)",
	"Proforma Date", "Proforma to Order (days)",
	"Order Date", "Order to Waybill (days)",
	"Waybill Date", "Waybill to Invoice (days)",
	"Invoice Date",
	"Estimate No.", "Proforma No.", "Order No.", "Waybill No.", "Invoice No.",
	"Original Order No.",
}

// BreakdownHeader lists the breakdown export columns.
var BreakdownHeader = []string{
	"Row", "Category", "SKU", "Name", "Product ID",
	"Units", "List Price", "Discount %", "Tax %", "Unit Price", "Subtotal", "Total",
	"Net Weight", "Net Weight Total", "Gross Weight", "Gross Weight Total",
	"Origin", "HS Code", "Items",
}

// cell is one exported value: text, a decimal or a day count. Undefined
// values are blank.
type cell struct {
	text    string
	num     decimal.NullDecimal
	places  int32
	days    *int
	date    *shared.Date
	numeric bool
}

func textCell(s string) cell { return cell{text: s} }

func optText(s *string) cell {
	if s == nil {
		return cell{}
	}
	return cell{text: *s}
}

func numCell(v decimal.NullDecimal) cell { return cell{num: v, places: -1, numeric: true} }

func fixedCell(v decimal.NullDecimal, places int32) cell {
	return cell{num: v, places: places, numeric: true}
}

func daysCell(v *int) cell { return cell{days: v, numeric: true} }

func dateCell(d *shared.Date) cell { return cell{date: d} }

func intCell(n int) cell {
	return cell{num: shared.Some(decimal.NewFromInt(int64(n))), places: -1, numeric: true}
}

func (c cell) String() string {
	switch {
	case c.date != nil:
		return c.date.String()
	case c.days != nil:
		return decimal.NewFromInt(int64(*c.days)).String()
	case c.numeric && c.places >= 0:
		return shared.FormatFixed(c.num, c.places)
	case c.numeric:
		return shared.FormatNull(c.num)
	}
	return c.text
}

func lineageCells(row lineage.Row) []cell {
	return []cell{
		textCell(row.OrderID),
		textCell(row.Client),
		fixedCell(row.Total, shared.MoneyPlaces),
		dateCell(row.Estimate.Date),
		daysCell(row.EstimateToProforma),
		dateCell(row.Proforma.Date),
		daysCell(row.ProformaToOrder),
		dateCell(row.Order.Date),
		daysCell(row.OrderToWaybill),
		dateCell(row.Waybill.Date),
		daysCell(row.WaybillToInvoice),
		dateCell(row.Invoice.Date),
		optText(row.Estimate.DocNumber),
		optText(row.Proforma.DocNumber),
		optText(row.Order.DocNumber),
		optText(row.Waybill.DocNumber),
		optText(row.Invoice.DocNumber),
		textCell(row.OrderDocNumber),
	}
}

func breakdownCells(row explode.Row) []cell {
	out := make([]cell, len(BreakdownHeader))
	out[0] = textCell(string(row.Kind()))
	switch r := row.(type) {
	case *explode.DataRow:
		out[1] = textCell(r.Subcategory)
		out[2] = textCell(r.SKU)
		out[3] = textCell(r.Name)
		out[4] = textCell(r.ProductID)
		out[5] = numCell(r.Units)
		out[6] = numCell(r.ListPrice)
		out[7] = numCell(r.Discount)
		out[8] = numCell(r.Tax)
		out[9] = fixedCell(r.UnitPrice, shared.MoneyPlaces)
		out[10] = fixedCell(r.Subtotal, shared.MoneyPlaces)
		out[11] = fixedCell(r.Total, shared.MoneyPlaces)
		out[12] = numCell(r.NetWeight)
		out[13] = numCell(r.NetWeightTotal)
		out[14] = numCell(r.GrossWeight)
		out[15] = numCell(r.GrossWeightTotal)
		out[16] = optText(r.Origin)
		out[17] = optText(r.HSCode)
	case *explode.CategoryHeader:
		out[1] = textCell(r.Category)
		out[18] = intCell(r.Items)
	case *explode.CategorySubtotal:
		out[1] = textCell(r.Category)
		out[5] = fixedCell(r.Units, shared.UnitsPlaces)
		out[10] = fixedCell(r.Subtotal, shared.MoneyPlaces)
		out[11] = fixedCell(r.Total, shared.MoneyPlaces)
		out[13] = fixedCell(r.NetWeightTotal, shared.WeightPlaces)
		out[15] = fixedCell(r.GrossWeightTotal, shared.WeightPlaces)
	}
	return out
}

func cellStrings(cells []cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}
