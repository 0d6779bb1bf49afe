package domain

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	errTooPrecise = errors.New("monetary values must have at most 2 decimal places")
	errNotFinite  = errors.New("monetary values must be finite")

	hundred = decimal.NewFromInt(100)
)

// DollarsToCents converts a dollar amount to int64 cents. The shortest
// decimal form of f must have at most 2 decimal places.
func DollarsToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	cents := decimal.NewFromFloat(f).Mul(hundred)
	if !cents.IsInteger() {
		return 0, errTooPrecise
	}
	return cents.IntPart(), nil
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100.0
}

// CentsDecimalToDollars converts a fractional cents amount (such as an
// average price) to dollars, rounded to 4 decimal places.
func CentsDecimalToDollars(c decimal.Decimal) float64 {
	f, _ := c.Div(hundred).Round(4).Float64()
	return f
}
