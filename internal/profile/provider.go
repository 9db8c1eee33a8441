// SPDX-License-Identifier: GPL-3.0-only

package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
)

// Source tells where a resolved profile came from.
type Source string

const (
	SourceDisk        Source = "disk"
	SourceCalibration Source = "calibration"
	SourceDefault     Source = "default"
)

// Mode selects a Provider implementation.
type Mode string

const (
	// ModeAuto loads from disk and calibrates when nothing was saved yet.
	ModeAuto Mode = "auto"
	// ModeDisk only loads from disk.
	ModeDisk Mode = "disk"
	// ModeCalibrate runs a fresh calibration every time.
	ModeCalibrate Mode = "calibrate"
	// ModeDefault always uses the default profile.
	ModeDefault Mode = "default"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeDisk, ModeCalibrate, ModeDefault:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown profile mode %q", s)
	}
}

// Resolved is the profile a control cycle works with.
type Resolved struct {
	Profile Profile
	Source  Source
	// Warning is set when a fallback was taken. The profile is still usable.
	Warning error
}

// Provider supplies the calibration profile for a control cycle.
type Provider interface {
	Resolve(ctx context.Context) (Resolved, error)
}

// Calibrator runs a calibration burst. It is implemented by *sampler.Sampler.
type Calibrator interface {
	Calibrate(ctx context.Context, b sampler.Burst) (sampler.Stats, error)
}

// NewProvider builds the provider for mode.
func NewProvider(mode Mode, store *Store, calibrator Calibrator, burst sampler.Burst) Provider {
	switch mode {
	case ModeDisk:
		return &DiskProvider{store: store}
	case ModeCalibrate:
		return &CalibratingProvider{store: store, calibrator: calibrator, burst: burst, now: time.Now}
	case ModeDefault:
		return DefaultProvider{}
	default:
		return &OnDemandProvider{store: store, calibrator: calibrator, burst: burst, now: time.Now}
	}
}

// DefaultProvider always resolves to Default().
type DefaultProvider struct{}

// Resolve returns the default profile.
func (DefaultProvider) Resolve(context.Context) (Resolved, error) {
	return Resolved{Profile: Default(), Source: SourceDefault}, nil
}

// DiskProvider reads the saved profile and falls back to the default one when
// it is missing or unreadable.
type DiskProvider struct {
	store *Store
}

// Resolve loads the profile from disk.
func (d *DiskProvider) Resolve(context.Context) (Resolved, error) {
	p, err := d.store.Load()
	if err != nil {
		return Resolved{Profile: Default(), Source: SourceDefault, Warning: err}, nil
	}
	return Resolved{Profile: p, Source: SourceDisk}, nil
}

// CalibratingProvider runs a calibration for every cycle and saves the result.
type CalibratingProvider struct {
	store      *Store
	calibrator Calibrator
	burst      sampler.Burst
	now        func() time.Time
}

// Resolve calibrates and falls back to the default profile on failure.
func (c *CalibratingProvider) Resolve(ctx context.Context) (Resolved, error) {
	p, err := Calibrate(ctx, c.store, c.calibrator, c.burst, c.now())
	if err != nil {
		if ctx.Err() != nil {
			return Resolved{}, ctx.Err()
		}
		return Resolved{Profile: Default(), Source: SourceDefault, Warning: err}, nil
	}
	return Resolved{Profile: p, Source: SourceCalibration}, nil
}

// OnDemandProvider loads the saved profile and calibrates only when none
// exists. When calibration fails it resolves to the default profile without
// saving it, so the next cycle tries to calibrate again.
type OnDemandProvider struct {
	store      *Store
	calibrator Calibrator
	burst      sampler.Burst
	now        func() time.Time
}

// Resolve implements Provider.
func (o *OnDemandProvider) Resolve(ctx context.Context) (Resolved, error) {
	p, err := o.store.Load()
	if err == nil {
		return Resolved{Profile: p, Source: SourceDisk}, nil
	}
	if !errors.Is(err, ErrProfileMissing) {
		return Resolved{Profile: Default(), Source: SourceDefault, Warning: err}, nil
	}

	log.Info().Str("path", o.store.Path()).Msg("Calibration profile not found, running calibration")

	p, err = Calibrate(ctx, o.store, o.calibrator, o.burst, o.now())
	if err != nil {
		if ctx.Err() != nil {
			return Resolved{}, ctx.Err()
		}
		return Resolved{Profile: Default(), Source: SourceDefault, Warning: err}, nil
	}
	return Resolved{Profile: p, Source: SourceCalibration}, nil
}

// Calibrate runs a calibration burst and saves the resulting profile. A
// failure to save is logged; the calibrated profile is still returned.
func Calibrate(ctx context.Context, store *Store, calibrator Calibrator, burst sampler.Burst, now time.Time) (Profile, error) {
	if calibrator == nil {
		return Profile{}, errors.New("no calibrator configured")
	}

	stats, err := calibrator.Calibrate(ctx, burst)
	if err != nil {
		return Profile{}, fmt.Errorf("calibration failed: %w", err)
	}

	p := FromStats(stats, burst, now)
	if err := store.Save(p); err != nil {
		log.Warn().Err(err).Str("path", store.Path()).Msg("Failed to save calibration profile")
		return p, nil
	}

	log.Info().
		Str("path", store.Path()).
		Float64("ambientMin", p.AmbientMin).
		Float64("ambientMax", p.AmbientMax).
		Msg("Calibration profile saved")
	return p, nil
}
