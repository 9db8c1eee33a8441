// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
)

func newOnceCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single control cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := resolveMode(mode)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := openPipeline(cfg, m)
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.controller.RunCycle(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ambient %.2f -> brightness %d%% (profile: %s)\n", res.Ambient, res.Target, res.Source)
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Profile mode override: auto, disk, calibrate or default")
	return cmd
}

// resolveMode returns the flag override or the configured profile mode.
func resolveMode(flag string) (profile.Mode, error) {
	if flag == "" {
		return cfg.ProfileMode(), nil
	}
	return profile.ParseMode(flag)
}
