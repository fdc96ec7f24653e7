package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
)

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "Inspect the surge hotspot history",
}

var (
	hotspotsSince string
	hotspotsLimit int
	hotspotsOut   string
)

// hotspotFilter builds the history filter from --since and --limit.
func hotspotFilter() (hotspot.HistoryFilter, error) {
	f := hotspot.HistoryFilter{Limit: hotspotsLimit}
	if hotspotsSince != "" {
		t, err := time.Parse(time.RFC3339, hotspotsSince)
		if err != nil {
			return f, eris.Wrap(err, "hotspots: --since must be RFC3339")
		}
		f.Since = &t
	}
	return f, nil
}

var hotspotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded hotspots, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := hotspotFilter()
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hs, err := hotspot.NewLedger(st, cfg.Surge.Multiplier).History(ctx, f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-25s %-7s %-6s %s\n", "ID", "CREATED", "ORDERS", "MULT", "CENTER")
		for _, h := range hs {
			center := "-"
			if h.Geom != nil {
				center = geometry.Centroid(geometry.RingPoints(h.Geom, 0)).String()
			}
			fmt.Fprintf(out, "%-6d %-25s %-7d %-6.2f %s\n",
				h.ID, h.CreatedAt.Format(time.RFC3339), h.OrderCount, h.SurgeMultiplier, center)
		}
		return nil
	},
}

var hotspotsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export hotspot history to an Excel workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := hotspotFilter()
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hs, err := hotspot.NewLedger(st, cfg.Surge.Multiplier).History(ctx, f)
		if err != nil {
			return err
		}
		if err := hotspot.SaveXLSX(hotspotsOut, hs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d hotspots written to %s\n", len(hs), hotspotsOut)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{hotspotsListCmd, hotspotsExportCmd} {
		c.Flags().StringVar(&hotspotsSince, "since", "", "only hotspots created at or after this RFC3339 time")
		c.Flags().IntVar(&hotspotsLimit, "limit", 0, "maximum rows (0 = all)")
	}
	hotspotsExportCmd.Flags().StringVar(&hotspotsOut, "out", "hotspots.xlsx", "output workbook path")

	hotspotsCmd.AddCommand(hotspotsListCmd, hotspotsExportCmd)
	rootCmd.AddCommand(hotspotsCmd)
}
