// SPDX-License-Identifier: GPL-3.0-only

package brightness

// EaseOutCubic shapes linear progress p in [0, 1] so that most of the change
// happens early and the curve flattens towards the end.
func EaseOutCubic(p float64) float64 {
	q := 1 - p
	return 1 - q*q*q
}
