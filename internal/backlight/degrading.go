// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/brightness"
)

// NeutralPercent is reported when the current brightness cannot be read.
const NeutralPercent = 50

// Degrading wraps a Device so that brightness failures never abort a
// control cycle: reads fall back to NeutralPercent and failed writes are
// dropped, each with a warning.
type Degrading struct {
	dev Device
}

// NewDegrading wraps dev. A nil dev behaves as a missing mechanism.
func NewDegrading(dev Device) *Degrading {
	return &Degrading{dev: dev}
}

// Read returns the current percentage and whether it came from the device.
func (d *Degrading) Read() (int, bool) {
	if d.dev == nil {
		log.Warn().Str("kind", "brightness_unavailable").Int("fallback", NeutralPercent).Msg("No brightness device, assuming neutral brightness")
		return NeutralPercent, false
	}
	percent, err := d.dev.Read()
	if err != nil {
		log.Warn().Err(err).Str("kind", "brightness_unavailable").Int("fallback", NeutralPercent).Msg("Failed to read brightness, assuming neutral brightness")
		return NeutralPercent, false
	}
	return min(max(percent, 0), 100), true
}

// Apply clamps percent to the operating range and writes it. Failures are
// logged and swallowed.
func (d *Degrading) Apply(percent int) {
	percent = brightness.ClampPercent(float64(percent))
	if d.dev == nil {
		return
	}
	if err := d.dev.Apply(percent); err != nil {
		log.Warn().Err(err).Str("kind", "brightness_unavailable").Int("percent", percent).Msg("Failed to set brightness")
		return
	}
	log.Debug().Int("percent", percent).Msg("Brightness applied")
}

// ReadValue returns the current percentage, dropping the ok flag. It fits
// the feedback reader of a transition.
func (d *Degrading) ReadValue() int {
	percent, _ := d.Read()
	return percent
}
