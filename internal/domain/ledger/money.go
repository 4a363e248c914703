package ledger

import "github.com/shopspring/decimal"

// Scale is the number of decimal places every stored amount keeps (NUMERIC(18,6)).
const Scale = 6

// Representable reports whether v survives storage without rounding.
func Representable(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(Scale))
}

// CheckAmount rejects non-positive amounts and amounts finer than Scale.
func CheckAmount(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return Invalid("%s must be greater than 0", field)
	}
	if !Representable(v) {
		return Invalid("%s must have at most %d decimal places", field, Scale)
	}
	return nil
}
