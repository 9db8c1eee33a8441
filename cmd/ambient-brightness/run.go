// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/ambient-brightness-daemon/internal/dbus"
	"github.com/shini4i/ambient-brightness-daemon/internal/udev"
)

// cameraSettleDelay gives a freshly plugged camera time to finish USB
// enumeration before it is opened.
const cameraSettleDelay = 500 * time.Millisecond

// triggerer requests a control cycle.
type triggerer interface {
	Trigger()
}

func newRunCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run as a daemon, adjusting brightness periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := resolveMode(mode)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Msg("Starting ambient-brightness daemon")

			p, err := openPipeline(cfg, m)
			if err != nil {
				return err
			}
			defer p.Close()

			if cfg.Daemon.DBus {
				server := dbus.NewServer(p.controller, dbus.WithRateLimit(cfg.Daemon.RateLimit, cfg.Daemon.RateBurst))
				// Registered before export so bus calls never race the observer list.
				// Signals are dropped while the server has no connection.
				p.controller.AddObserver(server)
				if err := server.Start(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to start D-Bus server (remote control disabled)")
				} else {
					defer func() {
						if err := server.Stop(); err != nil {
							log.Error().Err(err).Msg("Failed to stop D-Bus server")
						}
					}()
				}
			}

			if cfg.Daemon.Hotplug {
				monitor := udev.NewMonitor(createHotplugHandler(p.controller, time.Sleep))
				monitor.SetRecoveryHandler(createRecoveryHandler(p.controller))
				if err := monitor.Start(); err != nil {
					log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
				} else {
					defer func() {
						if err := monitor.Stop(); err != nil {
							log.Error().Err(err).Msg("Failed to stop udev monitor")
						}
					}()
				}
			}

			err = p.controller.Run(ctx, cfg.Daemon.Interval)
			log.Info().Msg("Daemon stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Profile mode override: auto, disk, calibrate or default")
	return cmd
}

// createHotplugHandler returns an event handler that runs a cycle when a
// camera appears. Removals are only logged; the next cycle reports the
// missing sensor.
func createHotplugHandler(t triggerer, sleep func(time.Duration)) udev.EventHandler {
	return func(event udev.Event) {
		if event.Type != udev.EventAdd {
			return
		}
		sleep(cameraSettleDelay)
		log.Info().Str("device", event.Device).Msg("Camera connected, running control cycle")
		t.Trigger()
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow
// recovery. A cycle is requested in case a camera arrival was missed.
func createRecoveryHandler(t triggerer) udev.RecoveryHandler {
	return func() {
		log.Info().Msg("Requesting control cycle after netlink buffer overflow")
		t.Trigger()
	}
}
