// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent control cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cycles, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), cycles)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of cycles to show")
	return cmd
}

func printHistory(w io.Writer, cycles []controller.Result) error {
	if len(cycles) == 0 {
		_, err := fmt.Fprintln(w, "no cycles recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "TIME\tAMBIENT\tFROM\tTO\tPROFILE\tDEVICE"); err != nil {
		return err
	}
	for _, c := range cycles {
		device := "ok"
		if !c.DeviceOK {
			device = "unreadable"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\t%s\t%s\n",
			c.Time.Local().Format(time.DateTime), c.Ambient, c.Previous, c.Target, c.Source, device); err != nil {
			return err
		}
	}
	return tw.Flush()
}
