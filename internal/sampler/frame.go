// SPDX-License-Identifier: GPL-3.0-only

package sampler

import (
	"errors"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

var (
	errFrameTooDark = errors.New("frame mean at or below noise floor")
	errEmptyBand    = errors.New("no pixels inside percentile band")
)

// levels holds every 8-bit intensity as a float, used as the value axis of
// histogram-weighted statistics.
var levels = func() [256]float64 {
	var l [256]float64
	for i := range l {
		l[i] = float64(i)
	}
	return l
}()

// histogram counts pixel intensities of an 8-bit grayscale image.
type histogram [256]float64

func newHistogram(pix []byte) histogram {
	var h histogram
	for _, v := range pix {
		h[v]++
	}
	return h
}

func (h *histogram) total() float64 {
	var n float64
	for _, c := range h {
		n += c
	}
	return n
}

// mean returns the mean intensity.
func (h *histogram) mean() float64 {
	if h.total() == 0 {
		return 0
	}
	return stat.Mean(levels[:], h[:])
}

// at returns the i-th smallest intensity (zero based).
func (h *histogram) at(i int) float64 {
	var cum float64
	for level, c := range h {
		cum += c
		if cum > float64(i) {
			return float64(level)
		}
	}
	return 255
}

// percentile returns the p-th percentile (0-100) using linear interpolation
// between the two closest ranks.
func (h *histogram) percentile(p float64) float64 {
	n := h.total()
	if n == 0 {
		return 0
	}
	rank := p / 100 * (n - 1)
	lo := math.Floor(rank)
	v := h.at(int(lo))
	if frac := rank - lo; frac > 0 {
		v += frac * (h.at(int(lo)+1) - v)
	}
	return v
}

// bandMean returns the mean of intensities within [lower, upper].
func (h *histogram) bandMean(lower, upper float64) (float64, bool) {
	from := int(math.Max(math.Ceil(lower), 0))
	to := int(math.Min(math.Floor(upper), 255))
	if from > to {
		return 0, false
	}

	var n float64
	for _, c := range h[from : to+1] {
		n += c
	}
	if n == 0 {
		return 0, false
	}
	return stat.Mean(levels[from:to+1], h[from:to+1]), true
}

// grayscale converts frame to a single-channel 8-bit Mat owned by the caller.
func grayscale(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// Measure reduces a frame to a single brightness scalar: the mean of the
// denoised pixels lying between the configured lower and upper percentiles.
// Frames whose raw mean does not exceed the noise floor are rejected.
// The frame itself is left untouched.
func Measure(frame gocv.Mat, cfg Config) (float64, error) {
	if frame.Empty() {
		return 0, errFrameTooDark
	}

	gray := grayscale(frame)
	defer gray.Close()

	raw := newHistogram(gray.ToBytes())
	if raw.total() == 0 || raw.mean() <= cfg.NoiseFloor {
		return 0, errFrameTooDark
	}

	if cfg.Equalize {
		gocv.EqualizeHist(gray, &gray)
	}
	out := gray
	if cfg.BlurKernel >= 3 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.MedianBlur(gray, &blurred, cfg.BlurKernel)
		out = blurred
	}

	h := newHistogram(out.ToBytes())
	lower := h.percentile(cfg.LowerPercentile)
	upper := h.percentile(cfg.UpperPercentile)

	v, ok := h.bandMean(lower, upper)
	if !ok {
		return 0, errEmptyBand
	}
	return v, nil
}
