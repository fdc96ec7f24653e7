package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
)

var anomaliesOnly bool

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Classify positioned drivers against the city boundary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		statuses, err := driver.NewTracker(st, cfg.Anomaly.BoundaryCategory).Anomalies(ctx)
		if err != nil {
			return err
		}
		printStatuses(cmd, statuses, anomaliesOnly)
		return nil
	},
}

func printStatuses(cmd *cobra.Command, statuses []driver.Status, onlyAnomalous bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-12s %-12s %s\n", "DRIVER", "LAT", "LON", "ANOMALOUS")
	var flagged int
	for _, s := range statuses {
		if s.IsAnomalous {
			flagged++
		} else if onlyAnomalous {
			continue
		}
		fmt.Fprintf(out, "%-10d %-12.6f %-12.6f %t\n", s.DriverID, s.Lat, s.Lon, s.IsAnomalous)
	}
	fmt.Fprintf(out, "\n%d of %d drivers outside the city boundary\n", flagged, len(statuses))
}

func init() {
	anomaliesCmd.Flags().BoolVar(&anomaliesOnly, "only-anomalous", false, "only print anomalous drivers")
	rootCmd.AddCommand(anomaliesCmd)
}
