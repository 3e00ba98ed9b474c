package explode

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RowKind tags the variant of an exploded row.
type RowKind string

// Row kinds.
const (
	KindData     RowKind = "data"
	KindHeader   RowKind = "header"
	KindSubtotal RowKind = "subtotal"
)

// Row is one entry of an exploded sequence: a *DataRow, *CategoryHeader or
// *CategorySubtotal.
type Row interface {
	Kind() RowKind
	isRow()
}

// DataRow is a priced, enriched line item.
type DataRow struct {
	Position         int                 `json:"position"`
	SKU              string              `json:"sku"`
	Name             string              `json:"name"`
	ProductID        string              `json:"productId"`
	Units            decimal.NullDecimal `json:"units"`
	ListPrice        decimal.NullDecimal `json:"listPrice"`
	Discount         decimal.NullDecimal `json:"discount"`
	Tax              decimal.NullDecimal `json:"tax"`
	UnitPrice        decimal.NullDecimal `json:"unitPrice"`
	Subtotal         decimal.NullDecimal `json:"subtotal"`
	Total            decimal.NullDecimal `json:"total"`
	NetWeight        decimal.NullDecimal `json:"netWeight"`
	NetWeightTotal   decimal.NullDecimal `json:"netWeightTotal"`
	GrossWeight      decimal.NullDecimal `json:"grossWeight"`
	GrossWeightTotal decimal.NullDecimal `json:"grossWeightTotal"`
	Origin           *string             `json:"origin"`
	HSCode           *string             `json:"hsCode"`
	Subcategory      string              `json:"subcategory"`
}

// CategoryHeader opens a category group.
type CategoryHeader struct {
	Category string `json:"category"`
	Items    int    `json:"items"`
}

// CategorySubtotal closes a category group with its aggregates.
type CategorySubtotal struct {
	Category         string              `json:"category"`
	Units            decimal.NullDecimal `json:"units"`
	Subtotal         decimal.NullDecimal `json:"subtotal"`
	Total            decimal.NullDecimal `json:"total"`
	NetWeightTotal   decimal.NullDecimal `json:"netWeightTotal"`
	GrossWeightTotal decimal.NullDecimal `json:"grossWeightTotal"`
}

func (*DataRow) Kind() RowKind          { return KindData }
func (*CategoryHeader) Kind() RowKind   { return KindHeader }
func (*CategorySubtotal) Kind() RowKind { return KindSubtotal }

func (*DataRow) isRow()          {}
func (*CategoryHeader) isRow()   {}
func (*CategorySubtotal) isRow() {}

// MarshalJSON adds the kind tag.
func (r *DataRow) MarshalJSON() ([]byte, error) {
	type alias DataRow
	return json.Marshal(struct {
		Kind RowKind `json:"kind"`
		*alias
	}{Kind: KindData, alias: (*alias)(r)})
}

// MarshalJSON adds the kind tag.
func (r *CategoryHeader) MarshalJSON() ([]byte, error) {
	type alias CategoryHeader
	return json.Marshal(struct {
		Kind RowKind `json:"kind"`
		*alias
	}{Kind: KindHeader, alias: (*alias)(r)})
}

// MarshalJSON adds the kind tag.
func (r *CategorySubtotal) MarshalJSON() ([]byte, error) {
	type alias CategorySubtotal
	return json.Marshal(struct {
		Kind RowKind `json:"kind"`
		*alias
	}{Kind: KindSubtotal, alias: (*alias)(r)})
}

// DataRows filters the data rows out of a sequence.
func DataRows(rows []Row) []*DataRow {
	out := make([]*DataRow, 0, len(rows))
	for _, r := range rows {
		if data, ok := r.(*DataRow); ok {
			out = append(out, data)
		}
	}
	return out
}
