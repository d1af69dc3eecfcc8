// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
)

// Round rounds a value to two decimals, i.e. to represent real currency.
// Every monetary figure the engine emits goes through this exactly once at the
// point of computation; totals are sums of already-rounded values.
func Round(val float64) float64 {
	return math.Round(val*constants.DecimalPrecision) / constants.DecimalPrecision
}

// IsZero checks if a value is effectively zero (within tolerance)
func IsZero(val float64) bool {
	return math.Abs(val) <= constants.CurrencyTolerance
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// ClampFloor returns val, or floor when val is below it.
func ClampFloor(val, floor float64) float64 {
	if val < floor {
		return floor
	}
	return val
}
