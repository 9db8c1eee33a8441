// SPDX-License-Identifier: GPL-3.0-only

// Package brightness maps ambient light readings to display brightness
// percentages and provides the clamping and easing helpers used when moving
// a display between two levels.
package brightness

import "math"

const (
	// MinPercent is the lowest brightness ever commanded to a display.
	// Lower values turn many panels off entirely.
	MinPercent = 5

	// MaxPercent is the highest brightness percentage.
	MaxPercent = 100

	// OutputLow is the percentage the bottom of the calibrated ambient range maps to.
	OutputLow = 10.0

	// OutputHigh is the percentage the top of the calibrated ambient range maps to.
	OutputHigh = 100.0

	// DegeneratePercent is returned when the calibrated range is empty or
	// inverted, or when the reading is not a number.
	DegeneratePercent = 55
)

// MapToPercent maps an ambient brightness reading onto a display brightness
// percentage using the calibrated bounds [ambientMin, ambientMax].
//
// Readings are linearly interpolated onto [OutputLow, OutputHigh] without
// extrapolation, then clamped to [MinPercent, MaxPercent] and truncated.
func MapToPercent(ambient, ambientMin, ambientMax float64) int {
	if math.IsNaN(ambient) || math.IsNaN(ambientMin) || math.IsNaN(ambientMax) || ambientMin >= ambientMax {
		return DegeneratePercent
	}

	t := (ambient - ambientMin) / (ambientMax - ambientMin)
	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}

	return ClampPercent(OutputLow + t*(OutputHigh-OutputLow))
}

// ClampPercent clamps v to [MinPercent, MaxPercent] and truncates it.
func ClampPercent(v float64) int {
	if v < MinPercent {
		return MinPercent
	}
	if v > MaxPercent {
		return MaxPercent
	}
	return int(v)
}
