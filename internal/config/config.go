// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/shini4i/ambient-brightness-daemon/internal/backlight"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
	"github.com/shini4i/ambient-brightness-daemon/internal/transition"
)

// Config represents the TOML configuration file.
type Config struct {
	Sampler    SamplerConfig    `toml:"sampler"`
	Transition TransitionConfig `toml:"transition"`
	Profile    ProfileConfig    `toml:"profile"`
	Device     DeviceConfig     `toml:"device"`
	Daemon     DaemonConfig     `toml:"daemon"`
	MQTT       MQTTConfig       `toml:"mqtt"`
	History    HistoryConfig    `toml:"history"`
}

// SamplerConfig maps camera and frame processing settings.
type SamplerConfig struct {
	Camera          int           `toml:"camera"`
	NoiseFloor      float64       `toml:"noise-floor"`
	LowerPercentile float64       `toml:"lower-percentile"`
	UpperPercentile float64       `toml:"upper-percentile"`
	BlurKernel      int           `toml:"blur-kernel"`
	Equalize        bool          `toml:"equalize"`
	AttemptDelay    time.Duration `toml:"attempt-delay"`
	MaxFrames       int           `toml:"max-frames"`
	NeededSamples   int           `toml:"needed-samples"`
	FrameDelay      time.Duration `toml:"frame-delay"`
	Width           int           `toml:"width"`
	Height          int           `toml:"height"`
	FrameRate       int           `toml:"fps"`

	// Camera controls pinned while calibrating.
	CalibrationControls   bool    `toml:"calibration-controls"`
	CalibrationExposure   float64 `toml:"calibration-exposure"`
	CalibrationContrast   float64 `toml:"calibration-contrast"`
	CalibrationBrightness float64 `toml:"calibration-brightness"`
}

// TransitionConfig maps brightness animation settings.
type TransitionConfig struct {
	Duration      time.Duration `toml:"duration"`
	StepSize      int           `toml:"step-size"`
	FeedbackSync  bool          `toml:"feedback-sync"`
	PollInterval  time.Duration `toml:"poll-interval"`
	SyncTolerance int           `toml:"sync-tolerance"`
	SyncTimeout   time.Duration `toml:"sync-timeout"`
}

// ProfileConfig selects how the calibration profile is obtained.
type ProfileConfig struct {
	Mode string `toml:"mode"`
	Path string `toml:"path"`
}

// DeviceConfig selects the brightness backend.
type DeviceConfig struct {
	Backend   string `toml:"backend"`
	Name      string `toml:"name"`
	SysfsRoot string `toml:"sysfs-root"`
	Serial    string `toml:"serial"`
}

// DaemonConfig maps settings of the long-running mode.
type DaemonConfig struct {
	Interval  time.Duration `toml:"interval"`
	DBus      bool          `toml:"dbus"`
	Hotplug   bool          `toml:"hotplug"`
	RateLimit float64       `toml:"rate-limit"`
	RateBurst int           `toml:"rate-burst"`
}

// MQTTConfig maps cycle telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client-id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic-prefix"`
	QoS         byte   `toml:"qos"`
	Retain      bool   `toml:"retain"`
}

// HistoryConfig maps cycle history settings.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	sc := sampler.DefaultConfig()
	tc := transition.DefaultConfig()
	return Config{
		Sampler: SamplerConfig{
			NoiseFloor:      sc.NoiseFloor,
			LowerPercentile: sc.LowerPercentile,
			UpperPercentile: sc.UpperPercentile,
			BlurKernel:      sc.BlurKernel,
			Equalize:        sc.Equalize,
			AttemptDelay:    sc.AttemptDelay,
			MaxFrames:       sc.MaxFrames,
			NeededSamples:   sc.NeededSamples,
			FrameDelay:      sc.FrameDelay,
			Width:           sc.Resolution.Width,
			Height:          sc.Resolution.Height,
			FrameRate:       sc.FrameRate,

			CalibrationControls:   sc.CalibrationControls != nil,
			CalibrationExposure:   sc.CalibrationControls.Exposure,
			CalibrationContrast:   sc.CalibrationControls.Contrast,
			CalibrationBrightness: sc.CalibrationControls.Brightness,
		},
		Transition: TransitionConfig{
			Duration:      tc.Duration,
			StepSize:      tc.StepSize,
			FeedbackSync:  true,
			PollInterval:  tc.PollInterval,
			SyncTolerance: tc.SyncTolerance,
			SyncTimeout:   tc.SyncTimeout,
		},
		Profile: ProfileConfig{
			Mode: string(profile.ModeAuto),
			Path: DefaultProfilePath(),
		},
		Device: DeviceConfig{
			Backend: backlight.BackendBrightnessctl,
		},
		Daemon: DaemonConfig{
			Interval:  5 * time.Minute,
			DBus:      true,
			Hotplug:   true,
			RateLimit: 1,
			RateBurst: 3,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    AppName,
			TopicPrefix: AppName,
		},
		History: HistoryConfig{
			Path: DefaultHistoryPath(),
		},
	}
}

// Load reads a TOML config from path on top of Default(). A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return Config{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to stat config: %w", err)
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	s := c.Sampler
	switch {
	case s.LowerPercentile < 0 || s.UpperPercentile > 100 || s.LowerPercentile > s.UpperPercentile:
		return fmt.Errorf("sampler percentiles must satisfy 0 <= lower <= upper <= 100, got %.1f and %.1f", s.LowerPercentile, s.UpperPercentile)
	case s.BlurKernel < 1 || s.BlurKernel%2 == 0:
		return fmt.Errorf("sampler blur-kernel must be a positive odd number, got %d", s.BlurKernel)
	case s.MaxFrames < 1:
		return fmt.Errorf("sampler max-frames must be positive, got %d", s.MaxFrames)
	case s.NeededSamples < 1:
		return fmt.Errorf("sampler needed-samples must be positive, got %d", s.NeededSamples)
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("sampler resolution must be positive, got %dx%d", s.Width, s.Height)
	case s.FrameRate <= 0:
		return fmt.Errorf("sampler fps must be positive, got %d", s.FrameRate)
	case s.AttemptDelay < 0 || s.FrameDelay < 0:
		return fmt.Errorf("sampler delays must not be negative")
	}

	t := c.Transition
	switch {
	case t.Duration < 0:
		return fmt.Errorf("transition duration must not be negative, got %s", t.Duration)
	case t.StepSize < 1:
		return fmt.Errorf("transition step-size must be positive, got %d", t.StepSize)
	case t.PollInterval <= 0:
		return fmt.Errorf("transition poll-interval must be positive, got %s", t.PollInterval)
	case t.SyncTolerance < 0:
		return fmt.Errorf("transition sync-tolerance must not be negative, got %d", t.SyncTolerance)
	case t.SyncTimeout < 0:
		return fmt.Errorf("transition sync-timeout must not be negative, got %s", t.SyncTimeout)
	}

	if _, err := profile.ParseMode(c.Profile.Mode); err != nil {
		return err
	}
	if c.Profile.Path == "" {
		return fmt.Errorf("profile path is empty")
	}

	switch c.Device.Backend {
	case backlight.BackendSysfs, backlight.BackendBrightnessctl, backlight.BackendHID:
	default:
		return fmt.Errorf("unknown device backend %q", c.Device.Backend)
	}

	if c.Daemon.Interval < 0 {
		return fmt.Errorf("daemon interval must not be negative, got %s", c.Daemon.Interval)
	}
	if c.Daemon.RateLimit <= 0 || c.Daemon.RateBurst < 1 {
		return fmt.Errorf("daemon rate-limit and rate-burst must be positive")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history path is required when history is enabled")
	}
	return nil
}

// SamplerConfig converts the [sampler] section.
func (c Config) SamplerConfig() sampler.Config {
	s := c.Sampler
	var controls *sampler.Controls
	if s.CalibrationControls {
		controls = &sampler.Controls{
			Exposure:   s.CalibrationExposure,
			Contrast:   s.CalibrationContrast,
			Brightness: s.CalibrationBrightness,
		}
	}
	return sampler.Config{
		NoiseFloor:      s.NoiseFloor,
		LowerPercentile: s.LowerPercentile,
		UpperPercentile: s.UpperPercentile,
		BlurKernel:      s.BlurKernel,
		Equalize:        s.Equalize,
		AttemptDelay:    s.AttemptDelay,
		MaxFrames:       s.MaxFrames,
		NeededSamples:   s.NeededSamples,
		FrameDelay:      s.FrameDelay,
		Resolution:      sampler.Resolution{Width: s.Width, Height: s.Height},
		FrameRate:       s.FrameRate,

		CalibrationControls: controls,
	}
}

// TransitionConfig converts the [transition] section.
func (c Config) TransitionConfig() transition.Config {
	t := c.Transition
	return transition.Config{
		Duration:      t.Duration,
		StepSize:      t.StepSize,
		PollInterval:  t.PollInterval,
		SyncTolerance: t.SyncTolerance,
		SyncTimeout:   t.SyncTimeout,
	}
}

// ProfileMode returns the parsed [profile] mode.
func (c Config) ProfileMode() profile.Mode {
	mode, err := profile.ParseMode(c.Profile.Mode)
	if err != nil {
		return profile.ModeAuto
	}
	return mode
}

// BacklightOptions converts the [device] section.
func (c Config) BacklightOptions() backlight.Options {
	return backlight.Options{
		Backend:   c.Device.Backend,
		Name:      c.Device.Name,
		SysfsRoot: c.Device.SysfsRoot,
		Serial:    c.Device.Serial,
	}
}
