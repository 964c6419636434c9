package model

import (
	"fmt"
	"math"
)

// Amounts are carried internally as int64 minor units (two decimal places for
// every currency this platform sells in). Each provider adapter owns the
// conversion to the unit/precision its API expects.

// MajorString renders minor units as a 2-dp decimal string, e.g. 500 -> "5.00".
func MajorString(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

// MajorFloat renders minor units as a decimal number.
func MajorFloat(amount int64) float64 {
	return float64(amount) / 100
}

// MinorFromMajor converts a provider-reported decimal amount to minor units,
// rounding to the nearest cent.
func MinorFromMajor(major float64) int64 {
	return int64(math.Round(major * 100))
}

// WholeUnits rounds minor units to the nearest whole major unit. M-Pesa only
// accepts integer shilling amounts.
func WholeUnits(amount int64) int64 {
	return int64(math.Round(float64(amount) / 100))
}
