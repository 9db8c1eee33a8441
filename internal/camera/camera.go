// SPDX-License-Identifier: GPL-3.0-only

// Package camera implements the light sensor on top of a V4L2/OpenCV video
// capture device.
package camera

import (
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
)

// Camera opens a video capture device by index.
type Camera struct {
	deviceID int
}

// Verify Camera implements sampler.Sensor.
var _ sampler.Sensor = (*Camera)(nil)

// New returns a camera sensor for the given device index (0 is /dev/video0).
func New(deviceID int) *Camera {
	return &Camera{deviceID: deviceID}
}

// Open acquires the capture device.
func (c *Camera) Open() (sampler.Capture, error) {
	vc, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", c.deviceID, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("camera %d is not available", c.deviceID)
	}

	log.Debug().Int("device", c.deviceID).Msg("Camera opened")
	return &capture{vc: vc, frame: gocv.NewMat()}, nil
}

// capture wraps an open gocv.VideoCapture.
type capture struct {
	vc    *gocv.VideoCapture
	frame gocv.Mat
	size  sampler.Resolution
}

// Configure requests a frame size, rate and image controls from the driver.
// Frames that still arrive at a different size are resized in ReadFrame.
func (c *capture) Configure(st sampler.Settings) error {
	res := st.Resolution
	if res.Valid() {
		c.vc.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
		c.vc.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
		c.size = res
	}
	if st.FrameRate > 0 {
		c.vc.Set(gocv.VideoCaptureFPS, float64(st.FrameRate))
	}
	if ctl := st.Controls; ctl != nil {
		c.vc.Set(gocv.VideoCaptureExposure, ctl.Exposure)
		c.vc.Set(gocv.VideoCaptureContrast, ctl.Contrast)
		c.vc.Set(gocv.VideoCaptureBrightness, ctl.Brightness)
		log.Debug().
			Float64("exposure", ctl.Exposure).
			Float64("contrast", ctl.Contrast).
			Float64("brightness", ctl.Brightness).
			Msg("Camera controls pinned")
	}

	got := sampler.Resolution{
		Width:  int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if res.Valid() && got != res {
		log.Debug().
			Int("requestedWidth", res.Width).
			Int("requestedHeight", res.Height).
			Int("width", got.Width).
			Int("height", got.Height).
			Msg("Camera ignored requested resolution, frames will be resized")
	}
	return nil
}

// ReadFrame grabs the next frame as a BGR Mat owned by the caller.
func (c *capture) ReadFrame() (gocv.Mat, error) {
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return gocv.Mat{}, sampler.ErrEndOfStream
	}
	return resize(c.frame, c.size), nil
}

// Close releases the capture device.
func (c *capture) Close() error {
	return errors.Join(c.frame.Close(), c.vc.Close())
}

// resize returns a copy of src scaled to size. The copy keeps the source
// size when size is unset or already matches.
func resize(src gocv.Mat, size sampler.Resolution) gocv.Mat {
	if !size.Valid() || (src.Cols() == size.Width && src.Rows() == size.Height) {
		return src.Clone()
	}
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationLinear)
	return dst
}
