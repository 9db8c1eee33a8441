// SPDX-License-Identifier: GPL-3.0-only

// Package controller runs control cycles: sample the ambient light, map it
// to a brightness percentage and walk the display towards it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/backlight"
	"github.com/shini4i/ambient-brightness-daemon/internal/brightness"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
	"github.com/shini4i/ambient-brightness-daemon/internal/transition"
)

// ErrNoCycle is returned by LastResult before the first completed cycle.
var ErrNoCycle = errors.New("no control cycle has completed yet")

// LightSampler measures ambient light. It is implemented by *sampler.Sampler.
type LightSampler interface {
	Sample(ctx context.Context, b sampler.Burst) (float64, error)
	Calibrate(ctx context.Context, b sampler.Burst) (sampler.Stats, error)
}

// Result describes a completed control cycle.
type Result struct {
	Time     time.Time
	Ambient  float64
	Previous int
	Target   int
	Source   profile.Source
	// DeviceOK is false when the brightness could not be read at the start
	// of the cycle.
	DeviceOK bool
}

// Observer is notified after every completed cycle.
type Observer interface {
	CycleCompleted(Result)
}

// CalibrationObserver is notified when Recalibrate stores a new profile.
// Observers may implement it in addition to Observer.
type CalibrationObserver interface {
	CalibrationChanged(profile.Profile)
}

// Config holds controller settings.
type Config struct {
	// Burst is the base capture burst; the resolved profile overrides its
	// resolution and frame rate.
	Burst sampler.Burst
	// CalibrationBurst is used by Recalibrate. A zero value falls back to Burst.
	CalibrationBurst sampler.Burst
	// FeedbackSync waits for the device to report each step before moving on.
	FeedbackSync bool
}

// Controller serializes control cycles against one sensor and one display.
type Controller struct {
	cfg      Config
	sampler  LightSampler
	provider profile.Provider
	store    *profile.Store
	device   *backlight.Degrading
	engine   *transition.Engine
	now      func() time.Time

	observers []Observer
	trigger   chan struct{}

	cycleMu sync.Mutex

	stateMu sync.RWMutex
	last    *Result
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithObserver registers an observer for completed cycles.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithClock sets the time source, for testing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithStore sets the profile store used by Recalibrate.
func WithStore(store *profile.Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// New creates a controller.
func New(cfg Config, s LightSampler, provider profile.Provider, device *backlight.Degrading, engine *transition.Engine, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		sampler:  s,
		provider: provider,
		device:   device,
		engine:   engine,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddObserver registers an observer after construction. It waits for a
// running cycle or calibration to finish, so it must not be called from an
// observer callback.
func (c *Controller) AddObserver(o Observer) {
	if o == nil {
		return
	}
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	c.observers = append(c.observers, o)
}

// RunCycle performs one control cycle. Cycles never overlap; a concurrent
// caller waits for the running cycle to finish.
func (c *Controller) RunCycle(ctx context.Context) (Result, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	resolved, err := c.provider.Resolve(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve calibration profile: %w", err)
	}
	if resolved.Warning != nil {
		log.Warn().Err(resolved.Warning).Str("kind", profileWarningKind(resolved.Warning)).Str("source", string(resolved.Source)).Msg("Using fallback calibration profile")
	}

	ambient, err := c.sampler.Sample(ctx, resolved.Profile.Apply(c.cfg.Burst))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn().Err(err).Str("kind", samplingWarningKind(err)).Msg("Skipping cycle, ambient light could not be measured")
		return Result{}, fmt.Errorf("failed to sample ambient light: %w", err)
	}

	lo, hi, err := resolved.Profile.Bounds()
	if err != nil {
		log.Warn().Err(err).Str("kind", "degenerate_calibration").Int("target", brightness.DegeneratePercent).Msg("Calibration range is unusable")
	}
	target := brightness.MapToPercent(ambient, lo, hi)

	current, ok := c.device.Read()

	var readActual func() int
	if ok && c.cfg.FeedbackSync {
		readActual = c.device.ReadValue
	}

	log.Info().
		Float64("ambient", ambient).
		Int("current", current).
		Int("target", target).
		Str("source", string(resolved.Source)).
		Msg("Adjusting brightness")

	if err := c.engine.Run(ctx, current, target, c.device.Apply, readActual); err != nil {
		return Result{}, fmt.Errorf("brightness transition interrupted: %w", err)
	}

	res := Result{
		Time:     c.now(),
		Ambient:  ambient,
		Previous: current,
		Target:   target,
		Source:   resolved.Source,
		DeviceOK: ok,
	}

	c.stateMu.Lock()
	c.last = &res
	c.stateMu.Unlock()

	for _, o := range c.observers {
		o.CycleCompleted(res)
	}
	return res, nil
}

// Recalibrate runs a calibration burst, saves it and notifies calibration
// observers. Subsequent cycles pick the new profile up from disk.
func (c *Controller) Recalibrate(ctx context.Context) (profile.Profile, error) {
	if c.store == nil {
		return profile.Profile{}, errors.New("no profile store configured")
	}

	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	p, err := profile.Calibrate(ctx, c.store, c.sampler, c.calibrationBurst(), c.now())
	if err != nil {
		return profile.Profile{}, err
	}

	for _, o := range c.observers {
		if co, ok := o.(CalibrationObserver); ok {
			co.CalibrationChanged(p)
		}
	}
	return p, nil
}

func (c *Controller) calibrationBurst() sampler.Burst {
	if c.cfg.CalibrationBurst.MaxFrames > 0 {
		return c.cfg.CalibrationBurst
	}
	return c.cfg.Burst
}

// LastResult returns the most recent completed cycle.
func (c *Controller) LastResult() (Result, error) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	if c.last == nil {
		return Result{}, ErrNoCycle
	}
	return *c.last, nil
}

// Trigger requests a cycle from Run. Requests made while one is pending are
// coalesced.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run performs a cycle immediately, then on every tick of interval and on
// every Trigger, until ctx is cancelled. A zero interval disables the ticker.
// Cycle errors are logged and do not stop the loop.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Info().Dur("interval", interval).Msg("Controller started")

	c.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Controller stopped")
			return nil
		case <-tick:
			c.runLogged(ctx)
		case <-c.trigger:
			log.Debug().Msg("Cycle triggered")
			c.runLogged(ctx)
		}
	}
}

func (c *Controller) runLogged(ctx context.Context) {
	if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Control cycle failed")
	}
}

func samplingWarningKind(err error) string {
	switch {
	case errors.Is(err, sampler.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, sampler.ErrNoUsableFrames):
		return "no_usable_frames"
	default:
		return "sampling_failed"
	}
}

func profileWarningKind(err error) string {
	switch {
	case errors.Is(err, profile.ErrProfileMissing):
		return "profile_missing"
	case errors.Is(err, profile.ErrProfileCorrupt):
		return "profile_corrupt"
	default:
		return "calibration_failed"
	}
}
