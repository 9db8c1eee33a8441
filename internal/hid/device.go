// SPDX-License-Identifier: GPL-3.0-only

// Package hid drives the backlight of an Apple Studio Display over USB HID.
package hid

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo identifies an opened HID interface.
type DeviceInfo struct {
	Path    string
	Serial  string
	Product string
}

// Device is the subset of a HID handle used for brightness reports.
// This interface allows for mocking in tests.
type Device interface {
	// GetFeatureReport fills data with a feature report. data[0] selects the report ID.
	GetFeatureReport(data []byte) (int, error)

	// SendFeatureReport writes a feature report. data[0] selects the report ID.
	SendFeatureReport(data []byte) (int, error)

	// Close closes the device handle.
	Close() error

	// Info describes the device.
	Info() DeviceInfo
}
