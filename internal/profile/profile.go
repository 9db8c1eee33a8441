// SPDX-License-Identifier: GPL-3.0-only

// Package profile persists the ambient light calibration and decides where a
// control cycle gets its calibration from.
package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
)

const (
	// DefaultAmbientMin is the lower ambient bound of the default profile.
	DefaultAmbientMin = 40.0

	// DefaultAmbientMax is the upper ambient bound of the default profile.
	DefaultAmbientMax = 170.0

	defaultWidth     = 320
	defaultHeight    = 240
	defaultFrameRate = 30
)

var (
	// ErrProfileMissing is returned when no profile has been saved yet.
	ErrProfileMissing = errors.New("calibration profile not found")

	// ErrProfileCorrupt is returned when the profile cannot be decoded.
	ErrProfileCorrupt = errors.New("calibration profile is corrupt")

	// ErrDegenerateCalibration is returned when the calibrated range is empty
	// or inverted.
	ErrDegenerateCalibration = errors.New("degenerate calibration range")
)

// Profile is the persisted outcome of a calibration run.
type Profile struct {
	AmbientMin       float64  `json:"ambient_min"`
	AmbientMax       float64  `json:"ambient_max"`
	AmbientMedian    *float64 `json:"ambient_median,omitempty"`
	CameraResolution []int    `json:"camera_resolution,omitempty"`
	FPSExpected      int      `json:"fps_expected,omitempty"`
	Timestamp        string   `json:"timestamp,omitempty"`
}

// Default returns the conservative profile used when no calibration exists.
func Default() Profile {
	return Profile{
		AmbientMin: DefaultAmbientMin,
		AmbientMax: DefaultAmbientMax,
	}
}

// FromStats builds a profile from a calibration burst.
func FromStats(st sampler.Stats, b sampler.Burst, now time.Time) Profile {
	median := st.Median
	p := Profile{
		AmbientMin:    st.Min,
		AmbientMax:    st.Max,
		AmbientMedian: &median,
		FPSExpected:   b.FrameRate,
		Timestamp:     now.Format(time.RFC3339),
	}
	if b.Resolution.Valid() {
		p.CameraResolution = []int{b.Resolution.Width, b.Resolution.Height}
	}
	return p
}

// Bounds returns the ambient interpolation domain. When the stored range is
// empty or inverted the range is still returned, together with
// ErrDegenerateCalibration; brightness.MapToPercent maps such a range to a
// fixed percentage.
func (p Profile) Bounds() (lo, hi float64, err error) {
	if !(p.AmbientMin < p.AmbientMax) {
		return p.AmbientMin, p.AmbientMax, fmt.Errorf("%w: min %.2f, max %.2f",
			ErrDegenerateCalibration, p.AmbientMin, p.AmbientMax)
	}
	return p.AmbientMin, p.AmbientMax, nil
}

// Resolution returns the capture resolution recorded at calibration time.
func (p Profile) Resolution() sampler.Resolution {
	if len(p.CameraResolution) == 2 {
		res := sampler.Resolution{Width: p.CameraResolution[0], Height: p.CameraResolution[1]}
		if res.Valid() {
			return res
		}
	}
	return sampler.Resolution{Width: defaultWidth, Height: defaultHeight}
}

// FrameRate returns the capture frame rate recorded at calibration time.
func (p Profile) FrameRate() int {
	if p.FPSExpected > 0 {
		return p.FPSExpected
	}
	return defaultFrameRate
}

// Apply copies the capture settings of the profile onto a burst.
func (p Profile) Apply(b sampler.Burst) sampler.Burst {
	b.Resolution = p.Resolution()
	b.FrameRate = p.FrameRate()
	return b
}
