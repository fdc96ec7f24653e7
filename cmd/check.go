package main

import (
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

var (
	checkDriverID int64
	checkLat      float64
	checkLon      float64
	checkAt       string
	checkWeather  string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Decide a single driver request and print the decision",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := checkRequest(cmd)
		if err != nil {
			return err
		}

		eng, st, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		d, err := eng.CheckDriver(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	},
}

// checkRequest builds the engine request from flags. --at and --weather are
// only applied when set.
func checkRequest(cmd *cobra.Command) (engine.Request, error) {
	req := engine.Request{
		DriverID: checkDriverID,
		Position: geometry.Pt(checkLon, checkLat),
	}
	if cmd.Flags().Changed("at") {
		t, err := time.Parse(time.RFC3339, checkAt)
		if err != nil {
			return req, eris.Wrap(err, "check: --at must be RFC3339")
		}
		req.At = &t
	}
	if cmd.Flags().Changed("weather") {
		w := checkWeather
		req.Weather = &w
	}
	return req, nil
}

func init() {
	f := checkCmd.Flags()
	f.Int64Var(&checkDriverID, "driver", 0, "driver id")
	f.Float64Var(&checkLat, "lat", 0, "latitude")
	f.Float64Var(&checkLon, "lon", 0, "longitude")
	f.StringVar(&checkAt, "at", "", "request time (RFC3339); filters zones by validity window")
	f.StringVar(&checkWeather, "weather", "", "current weather; filters zones by weather condition")
	_ = checkCmd.MarkFlagRequired("driver")
	_ = checkCmd.MarkFlagRequired("lat")
	_ = checkCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(checkCmd)
}
