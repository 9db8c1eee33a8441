// SPDX-License-Identifier: GPL-3.0-only

// Package main provides the entry point for the ambient brightness daemon.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/ambient-brightness-daemon/internal/config"
)

var (
	verbose    bool
	configPath string
	cfg        config.Config
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ambient-brightness",
		Short: "Adjust display brightness to the ambient light seen by the webcam",
		Long: `ambient-brightness samples the ambient light level through a webcam,
maps it onto a brightness percentage using a calibration profile and
smoothly moves the display backlight to that level.

Run "calibrate" once in the darkest and brightest conditions you expect,
then use "once" from a timer or "run" as a long-lived daemon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)

			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			log.Debug().Str("path", configPath).Msg("Configuration loaded")
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to the TOML config file")

	rootCmd.AddCommand(newRunCmd(), newOnceCmd(), newCalibrateCmd(), newHistoryCmd())
	return rootCmd
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
