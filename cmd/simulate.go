package main

import (
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/simulate"
)

var (
	simulateCfg      = simulate.DefaultConfig()
	simulateInterval time.Duration
	simulateSteps    int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Move synthetic drivers outward from Nairobi centre",
	Long:  "Reports positions for a synthetic fleet every interval. Every fifth driver moves fast enough to leave the city boundary, so it shows up in the anomaly report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sim, err := simulate.New(simulateCfg, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
		if err != nil {
			return err
		}
		tracker := driver.NewTracker(st, cfg.Anomaly.BoundaryCategory)

		zap.L().Info("simulation started",
			zap.Int("drivers", simulateCfg.Drivers),
			zap.Duration("interval", simulateInterval),
		)
		if err := sim.Run(ctx, tracker, simulateInterval, simulateSteps); err != nil {
			return err
		}
		zap.L().Info("simulation stopped")
		return nil
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simulateCfg.Drivers, "drivers", simulateCfg.Drivers, "number of drivers")
	f.Int64Var(&simulateCfg.FirstID, "first-id", simulateCfg.FirstID, "id of the first driver")
	f.IntVar(&simulateCfg.FastEvery, "fast-every", simulateCfg.FastEvery, "every Nth driver moves fast (0 disables)")
	f.DurationVar(&simulateInterval, "interval", 2*time.Second, "time between position reports")
	f.IntVar(&simulateSteps, "steps", 0, "number of steps (0 runs until interrupted)")
	rootCmd.AddCommand(simulateCmd)
}
