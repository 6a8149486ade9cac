package model

import "github.com/shopspring/decimal"

// Format renders a reading for display. Invalid readings render as "N/A".
func (r Reading) Format() string {
	if !r.Valid {
		return "N/A"
	}
	d := decimal.NewFromFloat(r.Number)
	switch r.Unit {
	case UnitOscillator:
		return d.StringFixed(1)
	case UnitSpread:
		return d.StringFixed(4)
	default:
		return FormatPrice(r.Number)
	}
}

// FormatPrice uses 2 decimals for prices >= 10 and 5 below (FX quotes).
func FormatPrice(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.Abs().LessThan(decimal.NewFromInt(10)) {
		return d.StringFixed(5)
	}
	return d.StringFixed(2)
}

// FormatCurrency renders an amount as "$1234.56" or "-$12.00".
func FormatCurrency(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatPercent renders a percentage with two decimals and a sign, e.g. "+2.50%".
func FormatPercent(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return d.StringFixed(2) + "%"
	}
	return "+" + d.StringFixed(2) + "%"
}
