// SPDX-License-Identifier: GPL-3.0-only

// Package sampler turns bursts of camera frames into a noise-robust ambient
// brightness reading.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/shini4i/ambient-brightness-daemon/internal/timeutil"
)

var (
	// ErrDeviceUnavailable is returned when the sensor cannot be opened.
	ErrDeviceUnavailable = errors.New("light sensor unavailable")

	// ErrNoUsableFrames is returned when a burst yields no accepted sample.
	ErrNoUsableFrames = errors.New("no usable frames captured")
)

// Config holds the per-frame processing policy and burst defaults.
type Config struct {
	// NoiseFloor rejects frames whose raw grayscale mean is at or below it.
	NoiseFloor float64
	// LowerPercentile and UpperPercentile bound the trimmed band (0-100).
	LowerPercentile float64
	UpperPercentile float64
	// BlurKernel is the median blur window size.
	BlurKernel int
	// Equalize applies histogram equalization before blurring.
	Equalize bool
	// AttemptDelay is the pause after every frame read attempt.
	AttemptDelay time.Duration

	MaxFrames     int
	NeededSamples int
	FrameDelay    time.Duration
	Resolution    Resolution
	FrameRate     int

	// CalibrationControls are pinned on the camera for calibration bursts
	// only. Nil keeps the automatic controls.
	CalibrationControls *Controls
}

// DefaultConfig returns the default sampling configuration.
func DefaultConfig() Config {
	return Config{
		NoiseFloor:      10,
		LowerPercentile: 10,
		UpperPercentile: 90,
		BlurKernel:      5,
		Equalize:        true,
		AttemptDelay:    50 * time.Millisecond,
		MaxFrames:       40,
		NeededSamples:   10,
		Resolution:      Resolution{Width: 320, Height: 240},
		FrameRate:       30,
		CalibrationControls: &Controls{
			Exposure:   -6,
			Contrast:   50,
			Brightness: 100,
		},
	}
}

// Burst returns the burst parameters configured in c.
func (c Config) Burst() Burst {
	return Burst{
		MaxFrames:     c.MaxFrames,
		NeededSamples: c.NeededSamples,
		FrameDelay:    c.FrameDelay,
		Resolution:    c.Resolution,
		FrameRate:     c.FrameRate,
	}
}

// CalibrationBurst is Burst with the calibration camera controls applied.
func (c Config) CalibrationBurst() Burst {
	b := c.Burst()
	if c.CalibrationControls != nil {
		controls := *c.CalibrationControls
		b.Controls = &controls
	}
	return b
}

// Burst describes one sampling run.
type Burst struct {
	// MaxFrames is the number of frame read attempts.
	MaxFrames int
	// NeededSamples stops the burst early once this many frames are accepted.
	NeededSamples int
	// FrameDelay paces reads after an accepted frame.
	FrameDelay time.Duration
	Resolution Resolution
	FrameRate  int
	// Controls pins camera image controls for this burst when set.
	Controls *Controls
}

// Settings returns what the sensor is asked to apply before the burst.
func (b Burst) Settings() Settings {
	return Settings{
		Resolution: b.Resolution,
		FrameRate:  b.FrameRate,
		Controls:   b.Controls,
	}
}

// Stats summarises the accepted samples of a calibration burst.
type Stats struct {
	Min    float64
	Max    float64
	Median float64
	Count  int
}

// Sampler reads bursts of frames from a Sensor.
type Sampler struct {
	sensor Sensor
	cfg    Config
	sleep  timeutil.SleepFunc
}

// Option is a functional option for configuring a Sampler.
type Option func(*Sampler)

// WithSleep replaces the sleep used between frame reads.
func WithSleep(fn timeutil.SleepFunc) Option {
	return func(s *Sampler) {
		s.sleep = fn
	}
}

// New creates a sampler reading from sensor.
func New(sensor Sensor, cfg Config, opts ...Option) *Sampler {
	s := &Sampler{
		sensor: sensor,
		cfg:    cfg,
		sleep:  timeutil.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the sampler configuration.
func (s *Sampler) Config() Config {
	return s.cfg
}

// Sample runs a burst and returns the median of the accepted samples.
func (s *Sampler) Sample(ctx context.Context, b Burst) (float64, error) {
	samples, err := s.collect(ctx, b)
	if err != nil {
		return 0, err
	}

	ambient := Median(samples)
	log.Info().
		Float64("ambient", ambient).
		Int("samples", len(samples)).
		Msg("Ambient brightness sampled")
	return ambient, nil
}

// Calibrate runs a burst and returns the spread of the accepted samples.
func (s *Sampler) Calibrate(ctx context.Context, b Burst) (Stats, error) {
	samples, err := s.collect(ctx, b)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Min:    floats.Min(samples),
		Max:    floats.Max(samples),
		Median: Median(samples),
		Count:  len(samples),
	}
	log.Info().
		Float64("min", st.Min).
		Float64("max", st.Max).
		Float64("median", st.Median).
		Int("samples", st.Count).
		Msg("Calibration burst completed")
	return st, nil
}

// collect opens the sensor, reads up to b.MaxFrames frames and returns the
// accepted per-frame readings in capture order. The sensor is always closed
// before returning.
func (s *Sampler) collect(ctx context.Context, b Burst) ([]float64, error) {
	needed := max(b.NeededSamples, 1)

	capture, err := s.sensor.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	defer func() {
		if err := capture.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release light sensor")
		}
	}()

	if settings := b.Settings(); !settings.empty() {
		if err := capture.Configure(settings); err != nil {
			log.Warn().
				Err(err).
				Int("width", b.Resolution.Width).
				Int("height", b.Resolution.Height).
				Int("fps", b.FrameRate).
				Bool("controls", b.Controls != nil).
				Msg("Failed to configure light sensor, using its defaults")
		}
	}

	samples := make([]float64, 0, needed)
	for attempt := 0; attempt < b.MaxFrames; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := capture.ReadFrame()
		if err == nil {
			var v float64
			v, err = Measure(frame, s.cfg)
			_ = frame.Close()
			if err == nil {
				samples = append(samples, v)
				if len(samples) >= needed {
					break
				}
				if err := s.sleep(ctx, b.FrameDelay); err != nil {
					return nil, err
				}
			}
		}
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("Frame rejected")
		}

		if err := s.sleep(ctx, s.cfg.AttemptDelay); err != nil {
			return nil, err
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w after %d attempts", ErrNoUsableFrames, b.MaxFrames)
	}
	return samples, nil
}

// Median returns the median of values, averaging the two middle values for
// even counts. It returns 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return stat.Mean(sorted[mid-1:mid+1], nil)
}
