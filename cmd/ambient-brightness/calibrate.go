// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shini4i/ambient-brightness-daemon/internal/camera"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
)

func newCalibrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the ambient light range and save a calibration profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sc := cfg.SamplerConfig()
			s := sampler.New(camera.New(cfg.Sampler.Camera), sc)
			store := profile.NewStore(cfg.Profile.Path)

			p, err := profile.Calibrate(ctx, store, s, sc.CalibrationBurst(), time.Now())
			if err != nil {
				return err
			}
			return printProfile(cmd, store.Path(), p)
		},
	}
}

func printProfile(cmd *cobra.Command, path string, p profile.Profile) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "ambient min %.2f, max %.2f", p.AmbientMin, p.AmbientMax); err != nil {
		return err
	}
	if p.AmbientMedian != nil {
		if _, err := fmt.Fprintf(out, ", median %.2f", *p.AmbientMedian); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "\nprofile saved to %s\n", path)
	return err
}
