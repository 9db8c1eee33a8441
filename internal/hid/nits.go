// SPDX-License-Identifier: GPL-3.0-only

package hid

import "math"

const (
	// MinNits is the lowest luminance the display accepts.
	MinNits uint32 = 400

	// MaxNits is the highest luminance the display accepts.
	MaxNits uint32 = 60000
)

// nitsToPercent converts a luminance report to a 0-100 percentage, rounding
// so that percentToNits followed by nitsToPercent is lossless.
func nitsToPercent(nits uint32) int {
	nits = min(max(nits, MinNits), MaxNits)
	return int(math.Round(float64(nits-MinNits) / float64(MaxNits-MinNits) * 100))
}

// percentToNits converts a percentage to a luminance value. Percentages
// outside 0-100 are clamped.
func percentToNits(percent int) uint32 {
	percent = min(max(percent, 0), 100)
	return MinNits + uint32(float64(percent)*float64(MaxNits-MinNits)/100)
}
