// SPDX-License-Identifier: GPL-3.0-only

// Package backlight reads and writes the display brightness percentage.
package backlight

import "errors"

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// ErrUnavailable is returned when the brightness mechanism does not exist on
// this machine (no backlight directory, no brightnessctl binary).
var ErrUnavailable = errors.New("brightness control unavailable")

// Device is a brightness control mechanism.
type Device interface {
	// Read returns the current brightness as an integer percentage.
	Read() (int, error)

	// Apply sets the brightness to an integer percentage.
	Apply(percent int) error
}
