package holded

import (
	"encoding/json"
	"strconv"

	"github.com/odyssey-erp/docflow/internal/shared"
)

// Attribute is a free-form name/value pair attached to a product.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts string, numeric and boolean attribute values.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Name = aux.Name
	switch v := aux.Value.(type) {
	case string:
		a.Value = v
	case float64:
		a.Value = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		a.Value = strconv.FormatBool(v)
	default:
		a.Value = ""
	}
	return nil
}

// Product is one entry of the product listing.
type Product struct {
	ID         string      `json:"id"`
	Name       string      `json:"name,omitempty"`
	SKU        string      `json:"sku,omitempty"`
	Weight     *float64    `json:"weight,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Listing sources.
const (
	SourceAPI      = "api"
	SourceSnapshot = "snapshot"
	SourceNone     = "none"
)

// ProductListing is the outcome of a product fetch, including how it degraded.
type ProductListing struct {
	Products []Product     `json:"products"`
	Source   string        `json:"source"`
	Status   shared.Status `json:"status"`
}
