// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"errors"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/backlight"
	"github.com/shini4i/ambient-brightness-daemon/internal/camera"
	"github.com/shini4i/ambient-brightness-daemon/internal/config"
	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/history"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
	"github.com/shini4i/ambient-brightness-daemon/internal/telemetry"
	"github.com/shini4i/ambient-brightness-daemon/internal/transition"
)

// pipeline holds everything a control cycle needs.
type pipeline struct {
	sampler    *sampler.Sampler
	store      *profile.Store
	controller *controller.Controller
	closers    []func() error
}

// newPipeline wires the cycle components around sensor and dev. A nil dev
// runs without brightness control.
func newPipeline(cfg config.Config, mode profile.Mode, sensor sampler.Sensor, dev backlight.Device, opts ...controller.Option) *pipeline {
	sc := cfg.SamplerConfig()
	s := sampler.New(sensor, sc)
	store := profile.NewStore(cfg.Profile.Path)
	burst := sc.Burst()
	calibration := sc.CalibrationBurst()

	provider := profile.NewProvider(mode, store, s, calibration)
	engine := transition.NewEngine(cfg.TransitionConfig())

	opts = append([]controller.Option{controller.WithStore(store)}, opts...)
	ctrl := controller.New(controller.Config{
		Burst:            burst,
		CalibrationBurst: calibration,
		FeedbackSync:     cfg.Transition.FeedbackSync,
	}, s, provider, backlight.NewDegrading(dev), engine, opts...)

	return &pipeline{sampler: s, store: store, controller: ctrl}
}

// openPipeline opens the configured camera, backlight and optional sinks.
func openPipeline(cfg config.Config, mode profile.Mode) (*pipeline, error) {
	dev, err := backlight.Open(cfg.BacklightOptions())
	if err != nil {
		if !errors.Is(err, backlight.ErrUnavailable) {
			return nil, err
		}
		log.Warn().Err(err).Str("kind", "brightness_unavailable").Str("backend", cfg.Device.Backend).Msg("Brightness control unavailable, continuing without it")
		dev = nil
	}

	var (
		opts    []controller.Option
		closers []func() error
	)
	if c, ok := dev.(io.Closer); ok {
		closers = append(closers, c.Close)
	}

	if cfg.History.Enabled {
		hs, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.History.Path).Msg("Cycle history disabled")
		} else {
			opts = append(opts, controller.WithObserver(hs))
			closers = append(closers, hs.Close)
		}
	}

	if cfg.MQTT.Enabled {
		pub, err := telemetry.Connect(telemetry.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Retain:      cfg.MQTT.Retain,
		})
		if err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry disabled")
		} else {
			opts = append(opts, controller.WithObserver(pub))
			closers = append(closers, func() error { pub.Close(); return nil })
		}
	}

	p := newPipeline(cfg, mode, camera.New(cfg.Sampler.Camera), dev, opts...)
	p.closers = closers
	return p, nil
}

// Close releases the resources opened by openPipeline.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to release resource")
		}
	}
}
