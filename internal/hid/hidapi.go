// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

const (
	// AppleVendorID is the USB vendor ID for Apple.
	AppleVendorID uint16 = 0x05ac

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID uint16 = 0x1114

	// BrightnessInterface is the USB interface number for brightness control.
	BrightnessInterface = 0x07
)

// hidapiDevice adapts a karalabe/hid handle to Device.
type hidapiDevice struct {
	karalabehid.Device
	info DeviceInfo
}

// Verify hidapiDevice implements Device interface.
var _ Device = (*hidapiDevice)(nil)

// Info returns information about the device.
func (d *hidapiDevice) Info() DeviceInfo {
	return d.info
}

// OpenStudioDisplay opens the brightness interface of an Apple Studio
// Display. An empty serial selects the first display found.
func OpenStudioDisplay(serial string) (Device, error) {
	devices, err := karalabehid.Enumerate(AppleVendorID, StudioDisplayProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	for _, info := range devices {
		if info.Interface != BrightnessInterface {
			continue
		}
		if serial != "" && info.Serial != serial {
			continue
		}

		device, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open display %s: %w", info.Serial, err)
		}
		return &hidapiDevice{
			Device: device,
			info:   DeviceInfo{Path: info.Path, Serial: info.Serial, Product: info.Product},
		}, nil
	}

	if serial != "" {
		return nil, fmt.Errorf("display with serial %s not found", serial)
	}
	return nil, fmt.Errorf("no Apple Studio Display found")
}
