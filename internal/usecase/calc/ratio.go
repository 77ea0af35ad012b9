package calc

import (
	"github.com/shopspring/decimal"
)

// divisionPrecision bounds the intermediate quotient before rounding
const divisionPrecision = 16

// SafeDiv divides a by b and returns fallback when b is zero
func SafeDiv(a, b, fallback decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return fallback
	}
	return a.DivRound(b, divisionPrecision)
}

// Ratio returns a / b rounded to places decimals, or zero when the division is undefined
func Ratio(a, b decimal.Decimal, places int32) decimal.Decimal {
	return SafeDiv(a, b, decimal.Zero).Round(places)
}

// Percent returns round(100 * part / total) as an int, or 0 when total is zero
func Percent(part, total int) int {
	if total == 0 {
		return 0
	}
	p := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), divisionPrecision).
		Round(0)
	return int(p.IntPart())
}

// Mean returns the arithmetic mean of values, or zero for an empty slice
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return SafeDiv(decimal.Sum(decimal.Zero, values...), decimal.NewFromInt(int64(len(values))), decimal.Zero)
}
