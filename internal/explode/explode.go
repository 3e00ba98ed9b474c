// Package explode turns an order's embedded line items into a priced,
// categorised breakdown.
package explode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/docflow/internal/catalog"
	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/shared"
)

// Mode selects flat or grouped output.
type Mode string

// Modes.
const (
	ModeRaw     Mode = "raw"
	ModeGrouped Mode = "grouped"
)

// SortPolicy orders category groups.
type SortPolicy string

// Sort policies.
const (
	SortAlphabetical SortPolicy = "alpha"
	SortSubtotalDesc SortPolicy = "subtotal"
)

// GrossWeightSource selects where the per-unit gross weight comes from.
type GrossWeightSource string

// Gross weight sources.
const (
	GrossWeightFromCatalog  GrossWeightSource = "catalog"
	GrossWeightFromLineItem GrossWeightSource = "line"
)

// Options configures an explosion.
type Options struct {
	Mode               Mode
	Sort               SortPolicy
	GrossWeight        GrossWeightSource
	UncategorizedLabel string
}

// ParseMode validates a mode string; empty selects grouped.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGrouped:
		return ModeGrouped, nil
	case ModeRaw:
		return ModeRaw, nil
	default:
		return "", fmt.Errorf("explode: unknown mode %q", s)
	}
}

// ParseSortPolicy validates a sort policy string; empty selects alphabetical.
func ParseSortPolicy(s string) (SortPolicy, error) {
	switch SortPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortAlphabetical:
		return SortAlphabetical, nil
	case SortSubtotalDesc:
		return SortSubtotalDesc, nil
	default:
		return "", fmt.Errorf("explode: unknown sort policy %q", s)
	}
}

// ParseGrossWeightSource validates a gross weight source; empty selects catalog.
func ParseGrossWeightSource(s string) (GrossWeightSource, error) {
	switch GrossWeightSource(strings.ToLower(strings.TrimSpace(s))) {
	case "", GrossWeightFromCatalog:
		return GrossWeightFromCatalog, nil
	case GrossWeightFromLineItem:
		return GrossWeightFromLineItem, nil
	default:
		return "", fmt.Errorf("explode: unknown gross weight source %q", s)
	}
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeGrouped
	}
	if o.Sort == "" {
		o.Sort = SortAlphabetical
	}
	if o.GrossWeight == "" {
		o.GrossWeight = GrossWeightFromCatalog
	}
	if strings.TrimSpace(o.UncategorizedLabel) == "" {
		o.UncategorizedLabel = catalog.DefaultSubcategory
	}
	return o
}

// Explode prices every line item of doc and enriches it from cat. Items with
// missing data still appear, with the affected derived fields undefined.
func Explode(doc holded.Document, cat catalog.Catalog, opts Options) []Row {
	opts = opts.withDefaults()
	data := make([]*DataRow, 0, len(doc.Products))
	for i, item := range doc.Products {
		data = append(data, explodeItem(i, item, cat, opts))
	}
	if opts.Mode == ModeRaw {
		rows := make([]Row, 0, len(data))
		for _, d := range data {
			rows = append(rows, d)
		}
		return rows
	}
	return group(data, opts)
}

func explodeItem(pos int, item holded.LineItem, cat catalog.Catalog, opts Options) *DataRow {
	entry, _ := cat.Lookup(item.ProductID)

	units := shared.FromFloat(shared.FirstPresent(item.Units, item.Quantity))
	price := shared.FromFloat(shared.FirstPresent(item.Price, item.UnitPrice))
	discount := shared.FromFloat(item.Discount)
	tax := shared.FromFloat(item.Tax)

	var unitPrice decimal.NullDecimal
	if units.Valid && price.Valid {
		unitPrice = shared.Round(shared.ApplyPercent(price, discount, -1), shared.MoneyPlaces)
	}
	subtotal := shared.Round(shared.Mul(units, unitPrice), shared.MoneyPlaces)
	total := shared.Round(shared.ApplyPercent(subtotal, tax, 1), shared.MoneyPlaces)

	netWeight := catalog.NetWeight(entry)
	grossWeight := entry.GrossWeight
	if opts.GrossWeight == GrossWeightFromLineItem {
		grossWeight = shared.FromFloat(item.Weight)
	}

	subcategory := opts.UncategorizedLabel
	if entry.Subcategory != nil {
		subcategory = *entry.Subcategory
	}

	return &DataRow{
		Position:         pos,
		SKU:              item.SKU,
		Name:             item.Name,
		ProductID:        item.ProductID,
		Units:            units,
		ListPrice:        price,
		Discount:         discount,
		Tax:              tax,
		UnitPrice:        unitPrice,
		Subtotal:         subtotal,
		Total:            total,
		NetWeight:        netWeight,
		NetWeightTotal:   shared.Mul(netWeight, units),
		GrossWeight:      grossWeight,
		GrossWeightTotal: shared.Mul(grossWeight, units),
		Origin:           entry.Origin,
		HSCode:           entry.HSCode,
		Subcategory:      subcategory,
	}
}

type categoryGroup struct {
	label    string
	members  []*DataRow
	subtotal *CategorySubtotal
}

func group(data []*DataRow, opts Options) []Row {
	groups := make([]*categoryGroup, 0)
	byLabel := make(map[string]*categoryGroup)
	for _, d := range data {
		label := strings.TrimSpace(d.Subcategory)
		if label == "" {
			label = opts.UncategorizedLabel
		}
		g, ok := byLabel[label]
		if !ok {
			g = &categoryGroup{label: label}
			byLabel[label] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, d)
	}
	for _, g := range groups {
		g.subtotal = aggregate(g.label, g.members)
	}

	sortGroups(groups, opts.Sort)

	rows := make([]Row, 0, len(data)+2*len(groups))
	for _, g := range groups {
		rows = append(rows, &CategoryHeader{Category: g.label, Items: len(g.members)})
		for _, m := range g.members {
			rows = append(rows, m)
		}
		rows = append(rows, g.subtotal)
	}
	return rows
}

func aggregate(label string, members []*DataRow) *CategorySubtotal {
	collect := func(field func(*DataRow) decimal.NullDecimal) []decimal.NullDecimal {
		values := make([]decimal.NullDecimal, len(members))
		for i, m := range members {
			values[i] = field(m)
		}
		return values
	}
	return &CategorySubtotal{
		Category:         label,
		Units:            shared.Round(shared.SumPresent(collect(func(r *DataRow) decimal.NullDecimal { return r.Units })), shared.UnitsPlaces),
		Subtotal:         shared.Round(shared.SumPresent(collect(func(r *DataRow) decimal.NullDecimal { return r.Subtotal })), shared.MoneyPlaces),
		Total:            shared.Round(shared.SumPresent(collect(func(r *DataRow) decimal.NullDecimal { return r.Total })), shared.MoneyPlaces),
		NetWeightTotal:   shared.Round(shared.SumPresent(collect(func(r *DataRow) decimal.NullDecimal { return r.NetWeightTotal })), shared.WeightPlaces),
		GrossWeightTotal: shared.Round(shared.SumPresent(collect(func(r *DataRow) decimal.NullDecimal { return r.GrossWeightTotal })), shared.WeightPlaces),
	}
}

func sortGroups(groups []*categoryGroup, policy SortPolicy) {
	coll := collate.New(language.Spanish, collate.IgnoreCase)
	alpha := func(a, b *categoryGroup) bool {
		if c := coll.CompareString(a.label, b.label); c != 0 {
			return c < 0
		}
		return a.label < b.label
	}
	switch policy {
	case SortSubtotalDesc:
		sort.SliceStable(groups, func(i, j int) bool {
			a, b := groups[i].subtotal.Subtotal, groups[j].subtotal.Subtotal
			switch {
			case a.Valid && !b.Valid:
				return true
			case !a.Valid && b.Valid:
				return false
			case a.Valid && b.Valid && !a.Decimal.Equal(b.Decimal):
				return a.Decimal.GreaterThan(b.Decimal)
			}
			return alpha(groups[i], groups[j])
		})
	default:
		sort.SliceStable(groups, func(i, j int) bool { return alpha(groups[i], groups[j]) })
	}
}
