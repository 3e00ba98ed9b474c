package shared

import (
	"github.com/shopspring/decimal"
)

// Rounding precision applied when a derived field is presented.
const (
	MoneyPlaces  int32 = 2
	WeightPlaces int32 = 3
	UnitsPlaces  int32 = 1
)

var hundred = decimal.NewFromInt(100)

// Some wraps a present value.
func Some(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FromFloat converts an optional float into an optional decimal.
func FromFloat(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return Some(decimal.NewFromFloat(*v))
}

// FirstPresent returns the first non-nil value.
func FirstPresent(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// Round rounds a present value half away from zero.
func Round(v decimal.NullDecimal, places int32) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return Some(v.Decimal.Round(places))
}

// Mul multiplies two optional values; the product is undefined when either side is.
func Mul(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || !b.Valid {
		return decimal.NullDecimal{}
	}
	return Some(a.Decimal.Mul(b.Decimal))
}

// ApplyPercent returns v * (1 + sign*pct/100). A missing percentage counts as zero.
func ApplyPercent(v decimal.NullDecimal, pct decimal.NullDecimal, sign int64) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	if !pct.Valid {
		return v
	}
	factor := decimal.NewFromInt(1).Add(pct.Decimal.Mul(decimal.NewFromInt(sign)).Div(hundred))
	return Some(v.Decimal.Mul(factor))
}

// SumPresent adds the present values. The sum is undefined when no value is present.
func SumPresent(values []decimal.NullDecimal) decimal.NullDecimal {
	var (
		total decimal.Decimal
		seen  bool
	)
	for _, v := range values {
		if !v.Valid {
			continue
		}
		total = total.Add(v.Decimal)
		seen = true
	}
	if !seen {
		return decimal.NullDecimal{}
	}
	return Some(total)
}

// FormatNull renders a value for flat exports; undefined values render empty.
func FormatNull(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}

// FormatFixed renders a value with a fixed number of decimals; undefined values render empty.
func FormatFixed(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(places)
}
