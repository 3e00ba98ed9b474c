// Package catalog builds the product master lookup used to enrich line items.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/docflow/internal/holded"
	"github.com/odyssey-erp/docflow/internal/shared"
)

const (
	// DefaultSubcategory labels products without a product line attribute.
	DefaultSubcategory = "Sin línea de producto"
	// NetWeightAttribute is matched exactly when extracting net weight.
	NetWeightAttribute = "Peso Neto"
)

// AttributeNames lists the attribute names recognised while building the catalog.
type AttributeNames struct {
	Origin      string
	HSCode      string
	Subcategory string
}

// DefaultAttributeNames returns the attribute names used by the product master.
func DefaultAttributeNames() AttributeNames {
	return AttributeNames{
		Origin:      "Origen",
		HSCode:      "Código HS",
		Subcategory: "Línea de producto",
	}
}

// Entry holds the enrichment fields of one product.
type Entry struct {
	Origin      *string             `json:"origin"`
	HSCode      *string             `json:"hsCode"`
	Subcategory *string             `json:"subcategory"`
	GrossWeight decimal.NullDecimal `json:"grossWeight"`
	Attributes  []holded.Attribute  `json:"attributes,omitempty"`
}

// Catalog maps product ids to entries.
type Catalog map[string]Entry

// Lookup resolves a product id. Unknown ids yield the zero entry.
func (c Catalog) Lookup(productID string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	entry, ok := c[strings.TrimSpace(productID)]
	return entry, ok
}

// Build indexes products by id. Products without an id are skipped; missing
// attributes stay nil except the subcategory, which falls back to DefaultSubcategory.
func Build(products []holded.Product, names AttributeNames) Catalog {
	fold := cases.Fold()
	key := func(s string) string { return fold.String(strings.TrimSpace(s)) }
	originKey, hsKey, subKey := key(names.Origin), key(names.HSCode), key(names.Subcategory)

	out := make(Catalog, len(products))
	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		entry := Entry{
			GrossWeight: shared.FromFloat(p.Weight),
			Attributes:  append([]holded.Attribute(nil), p.Attributes...),
		}
		for _, attr := range p.Attributes {
			name := key(attr.Name)
			if name == "" {
				continue
			}
			switch name {
			case originKey:
				entry.Origin = firstValue(entry.Origin, attr.Value)
			case hsKey:
				entry.HSCode = firstValue(entry.HSCode, attr.Value)
			case subKey:
				entry.Subcategory = firstValue(entry.Subcategory, attr.Value)
			}
		}
		if entry.Subcategory == nil {
			label := DefaultSubcategory
			entry.Subcategory = &label
		}
		if _, dup := out[id]; dup {
			continue
		}
		out[id] = entry
	}
	return out
}

func firstValue(current *string, value string) *string {
	if current != nil {
		return current
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// NetWeight extracts the per-unit net weight attribute. Non-numeric values are
// treated as absent.
func NetWeight(entry Entry) decimal.NullDecimal {
	for _, attr := range entry.Attributes {
		if attr.Name != NetWeightAttribute {
			continue
		}
		raw := strings.ReplaceAll(strings.TrimSpace(attr.Value), ",", ".")
		if raw == "" {
			return decimal.NullDecimal{}
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return shared.Some(value)
	}
	return decimal.NullDecimal{}
}
