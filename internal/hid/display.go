// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	// ReportID is the HID report ID for brightness control.
	ReportID byte = 0x01

	// ReportSize is the size of the HID feature report in bytes.
	ReportSize = 7
)

// ErrDisplayClosed is returned when an operation is attempted on a closed display.
var ErrDisplayClosed = errors.New("display is closed")

// Display reads and writes the brightness of one display.
// All methods are safe for concurrent use.
type Display struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewDisplay wraps an open HID device.
func NewDisplay(device Device) *Display {
	return &Display{device: device}
}

// Read returns the current brightness as a percentage (0-100).
func (d *Display) Read() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDisplayClosed
	}

	report := make([]byte, ReportSize)
	report[0] = ReportID
	if _, err := d.device.GetFeatureReport(report); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	return nitsToPercent(binary.LittleEndian.Uint32(report[1:5])), nil
}

// Apply sets the brightness to percent (0-100).
func (d *Display) Apply(percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayClosed
	}

	report := make([]byte, ReportSize)
	report[0] = ReportID
	binary.LittleEndian.PutUint32(report[1:5], percentToNits(percent))

	if _, err := d.device.SendFeatureReport(report); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Serial returns the serial number of the display.
func (d *Display) Serial() string {
	return d.device.Info().Serial
}

// Close closes the underlying HID device. Closing twice is a no-op.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.device.Close()
}
