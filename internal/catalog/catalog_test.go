package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docflow/internal/holded"
)

func weight(v float64) *float64 { return &v }

func TestBuildRecognisesAttributesCaseInsensitively(t *testing.T) {
	products := []holded.Product{
		{
			ID:     "p1",
			Weight: weight(2.5),
			Attributes: []holded.Attribute{
				{Name: "  ORIGEN ", Value: "ES"},
				{Name: "código hs", Value: "8471.30"},
				{Name: "Línea de Producto", Value: "Audio"},
				{Name: "Peso Neto", Value: "2,1"},
			},
		},
	}
	cat := Build(products, DefaultAttributeNames())
	entry, ok := cat.Lookup("p1")
	require.True(t, ok)
	require.NotNil(t, entry.Origin)
	assert.Equal(t, "ES", *entry.Origin)
	require.NotNil(t, entry.HSCode)
	assert.Equal(t, "8471.30", *entry.HSCode)
	require.NotNil(t, entry.Subcategory)
	assert.Equal(t, "Audio", *entry.Subcategory)
	assert.True(t, entry.GrossWeight.Valid)
	assert.True(t, entry.GrossWeight.Decimal.Equal(decimal.RequireFromString("2.5")))
	assert.Len(t, entry.Attributes, 4)

	net := NetWeight(entry)
	require.True(t, net.Valid)
	assert.Equal(t, "2.1", net.Decimal.String())
}

func TestBuildDefaultsAndSkips(t *testing.T) {
	products := []holded.Product{
		{ID: "", Attributes: []holded.Attribute{{Name: "Origen", Value: "FR"}}},
		{ID: "bare"},
		{ID: "blank", Attributes: []holded.Attribute{{Name: "Origen", Value: "  "}}},
	}
	cat := Build(products, DefaultAttributeNames())
	assert.Len(t, cat, 2)

	bare, ok := cat.Lookup("bare")
	require.True(t, ok)
	assert.Nil(t, bare.Origin)
	assert.Nil(t, bare.HSCode)
	require.NotNil(t, bare.Subcategory)
	assert.Equal(t, DefaultSubcategory, *bare.Subcategory)
	assert.False(t, bare.GrossWeight.Valid)

	blank, _ := cat.Lookup("blank")
	assert.Nil(t, blank.Origin)
}

func TestBuildKeepsFirstDuplicate(t *testing.T) {
	products := []holded.Product{
		{ID: "p", Attributes: []holded.Attribute{{Name: "Origen", Value: "ES"}}},
		{ID: "p", Attributes: []holded.Attribute{{Name: "Origen", Value: "PT"}}},
	}
	entry, _ := Build(products, DefaultAttributeNames()).Lookup("p")
	assert.Equal(t, "ES", *entry.Origin)
}

func TestBuildCustomNames(t *testing.T) {
	names := AttributeNames{Origin: "Country", HSCode: "TARIC", Subcategory: "Family"}
	products := []holded.Product{{ID: "p", Attributes: []holded.Attribute{
		{Name: "country", Value: "IT"},
		{Name: "Family", Value: "Lighting"},
	}}}
	entry, _ := Build(products, names).Lookup("p")
	assert.Equal(t, "IT", *entry.Origin)
	assert.Nil(t, entry.HSCode)
	assert.Equal(t, "Lighting", *entry.Subcategory)
}

func TestLookupUnknownIsFullyNull(t *testing.T) {
	cat := Build(nil, DefaultAttributeNames())
	entry, ok := cat.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, Entry{}, entry)

	var nilCatalog Catalog
	entry, ok = nilCatalog.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, Entry{}, entry)
}

func TestNetWeightParseFailuresAreAbsent(t *testing.T) {
	cases := map[string][]holded.Attribute{
		"non numeric": {{Name: NetWeightAttribute, Value: "approx 2kg"}},
		"empty":       {{Name: NetWeightAttribute, Value: ""}},
		"wrong case":  {{Name: "peso neto", Value: "1.0"}},
		"missing":     nil,
	}
	for name, attrs := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, NetWeight(Entry{Attributes: attrs}).Valid)
		})
	}
}
