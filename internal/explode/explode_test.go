package explode

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docflow/internal/catalog"
	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/shared"
)

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		"P1": {
			Origin:      s("ES"),
			HSCode:      s("0901"),
			Subcategory: s("Bebidas"),
			Attributes:  []holded.Attribute{{Name: "Peso Neto", Value: "1,5"}},
		},
		"P2": {Subcategory: s("Aceites")},
		"P3": {Subcategory: s("Bebidas")},
	}
}

func TestExplodePricesLineItem(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{{
		ProductID: "P1", Units: f(3), Price: f(10), Discount: f(10), Tax: f(21),
	}}}

	rows := Explode(doc, testCatalog(), Options{Mode: ModeRaw})
	require.Len(t, rows, 1)
	row, ok := rows[0].(*DataRow)
	require.True(t, ok)

	assert.Equal(t, "9.00", row.UnitPrice.Decimal.StringFixed(2))
	assert.Equal(t, "27.00", row.Subtotal.Decimal.StringFixed(2))
	assert.Equal(t, "32.67", row.Total.Decimal.StringFixed(2))
	assert.Equal(t, "1.5", row.NetWeight.Decimal.String())
	assert.Equal(t, "4.5", row.NetWeightTotal.Decimal.String())
	assert.Equal(t, "ES", *row.Origin)
	assert.Equal(t, "0901", *row.HSCode)
	assert.Equal(t, "Bebidas", row.Subcategory)
}

func TestExplodeFallsBackToAlternateFieldNames(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{{ProductID: "P2", Quantity: f(2), UnitPrice: f(4.5)}}}
	row := Explode(doc, testCatalog(), Options{Mode: ModeRaw})[0].(*DataRow)
	assert.Equal(t, "9", row.Subtotal.Decimal.String())
	assert.Equal(t, "9", row.Total.Decimal.String())
	assert.False(t, row.Discount.Valid)
	assert.False(t, row.Tax.Valid)
}

func TestExplodeMissingUnitsOrPriceLeavesDerivedUndefined(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{
		{ProductID: "P1", Price: f(10), Tax: f(21)},
		{ProductID: "P1", Units: f(2), Tax: f(21)},
	}}
	rows := DataRows(Explode(doc, testCatalog(), Options{Mode: ModeRaw}))
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.False(t, row.UnitPrice.Valid)
		assert.False(t, row.Subtotal.Valid)
		assert.False(t, row.Total.Valid)
	}
	assert.False(t, rows[0].NetWeightTotal.Valid)
	assert.Equal(t, "3", rows[1].NetWeightTotal.Decimal.String())
}

func TestExplodeUnknownProductUsesDefaults(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{{ProductID: "missing", Units: f(1), Price: f(1)}}}
	row := Explode(doc, testCatalog(), Options{Mode: ModeRaw})[0].(*DataRow)
	assert.Nil(t, row.Origin)
	assert.Nil(t, row.HSCode)
	assert.False(t, row.NetWeight.Valid)
	assert.False(t, row.GrossWeight.Valid)
	assert.Equal(t, catalog.DefaultSubcategory, row.Subcategory)
}

func TestExplodeGroupsUnknownProductsUnderConfiguredLabel(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{
		{SKU: "a", ProductID: "missing", Units: f(1), Price: f(1)},
		{SKU: "b", ProductID: "P1", Units: f(1), Price: f(2)},
	}}
	rows := Explode(doc, testCatalog(), Options{Mode: ModeGrouped, UncategorizedLabel: "Uncategorized"})

	var headers []string
	for _, r := range rows {
		if h, ok := r.(*CategoryHeader); ok {
			headers = append(headers, h.Category)
		}
	}
	assert.Contains(t, headers, "Uncategorized")
	assert.NotContains(t, headers, catalog.DefaultSubcategory)
	for _, d := range DataRows(rows) {
		if d.SKU == "a" {
			assert.Equal(t, "Uncategorized", d.Subcategory)
		}
	}
}

func TestExplodeGrossWeightSource(t *testing.T) {
	cat := catalog.Catalog{"P1": {GrossWeight: shared.Some(decimal.RequireFromString("2.5"))}}
	doc := holded.Document{Products: []holded.LineItem{{ProductID: "P1", Units: f(4), Weight: f(3)}}}

	fromCatalog := Explode(doc, cat, Options{Mode: ModeRaw})[0].(*DataRow)
	assert.Equal(t, "2.5", fromCatalog.GrossWeight.Decimal.String())
	assert.Equal(t, "10", fromCatalog.GrossWeightTotal.Decimal.String())

	fromLine := Explode(doc, cat, Options{Mode: ModeRaw, GrossWeight: GrossWeightFromLineItem})[0].(*DataRow)
	assert.Equal(t, "3", fromLine.GrossWeight.Decimal.String())
	assert.Equal(t, "12", fromLine.GrossWeightTotal.Decimal.String())
}

func TestExplodeRawKeepsInputOrder(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{
		{SKU: "b", ProductID: "P1"}, {SKU: "a", ProductID: "P2"}, {SKU: "c", ProductID: "P3"},
	}}
	rows := Explode(doc, testCatalog(), Options{Mode: ModeRaw})
	require.Len(t, rows, 3)
	for i, sku := range []string{"b", "a", "c"} {
		row := rows[i].(*DataRow)
		assert.Equal(t, KindData, row.Kind())
		assert.Equal(t, sku, row.SKU)
		assert.Equal(t, i, row.Position)
	}
}

func groupedDoc() holded.Document {
	return holded.Document{Products: []holded.LineItem{
		{SKU: "b1", ProductID: "P1", Units: f(1), Price: f(5)},
		{SKU: "a1", ProductID: "P2", Units: f(2), Price: f(100)},
		{SKU: "b2", ProductID: "P3", Units: f(1.25), Price: f(2)},
	}}
}

func kinds(rows []Row) []RowKind {
	out := make([]RowKind, len(rows))
	for i, r := range rows {
		out[i] = r.Kind()
	}
	return out
}

func TestExplodeGroupedAlphabetical(t *testing.T) {
	rows := Explode(groupedDoc(), testCatalog(), Options{})
	require.Equal(t, []RowKind{
		KindHeader, KindData, KindSubtotal,
		KindHeader, KindData, KindData, KindSubtotal,
	}, kinds(rows))

	assert.Equal(t, "Aceites", rows[0].(*CategoryHeader).Category)
	assert.Equal(t, 1, rows[0].(*CategoryHeader).Items)
	assert.Equal(t, "a1", rows[1].(*DataRow).SKU)
	assert.Equal(t, "200.00", rows[2].(*CategorySubtotal).Subtotal.Decimal.StringFixed(2))

	assert.Equal(t, "Bebidas", rows[3].(*CategoryHeader).Category)
	assert.Equal(t, "b1", rows[4].(*DataRow).SKU)
	assert.Equal(t, "b2", rows[5].(*DataRow).SKU)
	sub := rows[6].(*CategorySubtotal)
	assert.Equal(t, "Bebidas", sub.Category)
	assert.Equal(t, "2.3", sub.Units.Decimal.String())
	assert.Equal(t, "7.5", sub.Subtotal.Decimal.String())
	assert.Equal(t, "1.5", sub.NetWeightTotal.Decimal.String())
	assert.False(t, sub.GrossWeightTotal.Valid)
}

func TestExplodeGroupedBySubtotalDescending(t *testing.T) {
	doc := groupedDoc()
	doc.Products[1].Price = f(1)
	doc.Products = append(doc.Products, holded.LineItem{SKU: "x", ProductID: "unknown"})

	rows := Explode(doc, testCatalog(), Options{Sort: SortSubtotalDesc})
	var order []string
	for _, r := range rows {
		if h, ok := r.(*CategoryHeader); ok {
			order = append(order, h.Category)
		}
	}
	assert.Equal(t, []string{"Bebidas", "Aceites", catalog.DefaultSubcategory}, order)
}

func TestExplodeGroupWithNoDefinedValues(t *testing.T) {
	doc := holded.Document{Products: []holded.LineItem{{SKU: "x", ProductID: "unknown"}}}
	rows := Explode(doc, nil, Options{Mode: ModeGrouped})
	require.Len(t, rows, 3)
	sub := rows[2].(*CategorySubtotal)
	assert.Equal(t, catalog.DefaultSubcategory, sub.Category)
	assert.False(t, sub.Units.Valid)
	assert.False(t, sub.Subtotal.Valid)
	assert.False(t, sub.Total.Valid)
	assert.False(t, sub.NetWeightTotal.Valid)
}

func TestExplodeEmptyDocument(t *testing.T) {
	assert.Empty(t, Explode(holded.Document{}, testCatalog(), Options{}))
	assert.Empty(t, Explode(holded.Document{}, testCatalog(), Options{Mode: ModeRaw}))
}

func TestRowJSONCarriesKind(t *testing.T) {
	rows := Explode(groupedDoc(), testCatalog(), Options{})
	payload, err := json.Marshal(rows)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, len(rows))
	assert.Equal(t, "header", decoded[0]["kind"])
	assert.Equal(t, "data", decoded[1]["kind"])
	assert.Equal(t, "subtotal", decoded[2]["kind"])
	assert.Equal(t, "a1", decoded[1]["sku"])
}

func TestParseOptions(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeGrouped, mode)
	mode, err = ParseMode("RAW")
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, mode)
	_, err = ParseMode("flat")
	assert.Error(t, err)

	policy, err := ParseSortPolicy("subtotal")
	require.NoError(t, err)
	assert.Equal(t, SortSubtotalDesc, policy)
	_, err = ParseSortPolicy("random")
	assert.Error(t, err)

	source, err := ParseGrossWeightSource("line")
	require.NoError(t, err)
	assert.Equal(t, GrossWeightFromLineItem, source)
	_, err = ParseGrossWeightSource("scale")
	assert.Error(t, err)
}
