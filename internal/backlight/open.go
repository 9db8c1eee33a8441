// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"fmt"

	"github.com/shini4i/ambient-brightness-daemon/internal/hid"
)

// Backend names accepted by Open.
const (
	BackendSysfs         = "sysfs"
	BackendBrightnessctl = "brightnessctl"
	BackendHID           = "hid"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Name is the sysfs backlight name or brightnessctl device.
	Name string
	// SysfsRoot overrides DefaultSysfsRoot.
	SysfsRoot string
	// Serial selects a display for the hid backend.
	Serial string
}

// Open constructs the configured backend. The returned Device may also
// implement io.Closer.
func Open(opts Options) (Device, error) {
	switch opts.Backend {
	case BackendSysfs:
		return NewSysfs(opts.SysfsRoot, opts.Name)
	case "", BackendBrightnessctl:
		var bopts []BrightnessctlOption
		if opts.Name != "" {
			bopts = append(bopts, WithDeviceName(opts.Name))
		}
		return NewBrightnessctl(bopts...)
	case BackendHID:
		return hid.NewBacklight(opts.Serial), nil
	default:
		return nil, fmt.Errorf("unknown brightness backend %q", opts.Backend)
	}
}
