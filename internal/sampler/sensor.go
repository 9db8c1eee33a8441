// SPDX-License-Identifier: GPL-3.0-only

package sampler

//go:generate mockgen -source=sensor.go -destination=mocks/sensor_mock.go -package=mocks

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Capture.ReadFrame when the sensor has no
// frame to deliver.
var ErrEndOfStream = errors.New("end of frame stream")

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Controls pins camera image controls for the duration of a capture.
// Values are passed to the driver as is.
type Controls struct {
	Exposure   float64
	Contrast   float64
	Brightness float64
}

// Settings is what a burst asks of the sensor before reading frames.
type Settings struct {
	Resolution Resolution
	FrameRate  int
	// Controls is nil when the driver's automatic controls should be kept.
	Controls *Controls
}

// empty reports whether there is nothing to configure.
func (s Settings) empty() bool {
	return !s.Resolution.Valid() && s.FrameRate <= 0 && s.Controls == nil
}

// Sensor opens captures on a light sensor, usually a camera.
// This interface allows for mocking in tests.
type Sensor interface {
	// Open acquires the sensor. The returned Capture must be closed.
	Open() (Capture, error)
}

// Capture is an open handle on a light sensor.
type Capture interface {
	// Configure applies the burst settings. Sensors may ignore any of them.
	Configure(s Settings) error

	// ReadFrame grabs the next frame. The caller owns the returned Mat and
	// must close it.
	ReadFrame() (gocv.Mat, error)

	// Close releases the sensor.
	Close() error
}
