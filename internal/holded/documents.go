// Package holded talks to the Holded invoicing API and decodes its payloads.
package holded

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Document types understood by the invoicing API.
const (
	DocTypeEstimate   = "estimate"
	DocTypeProforma   = "proform"
	DocTypeSalesOrder = "salesorder"
	DocTypeWaybill    = "waybill"
	DocTypeInvoice    = "invoice"
)

// IsDocType reports whether docType is one of the lineage stages.
func IsDocType(docType string) bool {
	switch docType {
	case DocTypeEstimate, DocTypeProforma, DocTypeSalesOrder, DocTypeWaybill, DocTypeInvoice:
		return true
	default:
		return false
	}
}

// Reference points at the document another one was generated from.
type Reference struct {
	ID      string `json:"id"`
	DocType string `json:"docType"`
}

// Document is a snapshot of one invoicing document.
type Document struct {
	ID          string     `json:"id"`
	DocNumber   string     `json:"docNumber"`
	Date        int64      `json:"date"`
	ContactName string     `json:"contactName"`
	Total       float64    `json:"total"`
	From        *Reference `json:"from,omitempty"`
	Products    []LineItem `json:"products,omitempty"`
}

// UnmarshalJSON decodes a document, treating malformed from payloads as absent.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	aux := struct {
		*alias
		From json.RawMessage `json:"from"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.From = ParseReference(aux.From)
	return nil
}

// LineItem is one product entry embedded in a document.
type LineItem struct {
	SKU       string   `json:"sku,omitempty"`
	Name      string   `json:"name,omitempty"`
	Units     *float64 `json:"units,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	UnitPrice *float64 `json:"unitPrice,omitempty"`
	Tax       *float64 `json:"tax,omitempty"`
	Discount  *float64 `json:"discount,omitempty"`
	ProductID string   `json:"productId,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`
}

// ParseReference decodes a from payload. It accepts an object, a string holding
// an encoded object, or anything else; incomplete or malformed payloads yield nil.
func ParseReference(raw json.RawMessage) *Reference {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if ref := parseReferenceObject([]byte(s)); ref != nil {
			return ref
		}
		// Python-style literal dumps use single quotes.
		return parseReferenceObject([]byte(strings.ReplaceAll(s, "'", `"`)))
	}
	return parseReferenceObject(raw)
}

func parseReferenceObject(raw []byte) *Reference {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	id := scalarString(fields["id"])
	docType := scalarString(fields["docType"])
	if id == "" || docType == "" {
		return nil
	}
	return &Reference{ID: id, DocType: docType}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
