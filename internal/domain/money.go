package domain

import (
	"errors"
	"math"
)

// ErrBadMinorUnits is returned when a rupee amount cannot be represented
// exactly in paise (more than 2 fractional digits) or is not positive.
var ErrBadMinorUnits = errors.New("amount must be positive with at most 2 fractional digits")

// PaiseFromRupees converts a rupee amount from an API payload into paise.
// The amount must be strictly positive and must land on a whole paise value.
func PaiseFromRupees(rupees float64) (int64, error) {
	if rupees <= 0 || math.IsNaN(rupees) || math.IsInf(rupees, 0) {
		return 0, ErrBadMinorUnits
	}
	scaled := rupees * 100
	paise := math.Round(scaled)
	// Tolerate float noise from JSON decoding (e.g. 2499.9999999999995 for 25.00*100)
	// but reject genuine sub-paise precision like 10.005.
	if math.Abs(scaled-paise) > 1e-6 {
		return 0, ErrBadMinorUnits
	}
	if paise <= 0 {
		return 0, ErrBadMinorUnits
	}
	return int64(paise), nil
}

// RupeesFromPaise converts a paise amount back to rupees for API responses.
func RupeesFromPaise(paise int64) float64 {
	return float64(paise) / 100
}
