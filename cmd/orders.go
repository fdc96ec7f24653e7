package main

import (
	"fmt"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/importer"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Manage recent orders",
}

var (
	ordersSeedSpread float64
	ordersSeedRand   uint64
)

var ordersSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert synthetic order clusters (CBD, Westlands, plus noise)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		clusters := importer.DefaultClusters()
		if ordersSeedSpread > 0 {
			// Noise keeps its wider scatter.
			for i := range clusters[:2] {
				clusters[i].Spread = ordersSeedSpread
			}
		}
		seed := ordersSeedRand
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importer.SeedOrders(ctx, st, rand.New(rand.NewPCG(seed, seed)), clusters, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "orders inserted: %d\n", n)
		return nil
	},
}

func init() {
	ordersSeedCmd.Flags().Float64Var(&ordersSeedSpread, "spread", 0, "cluster spread in degrees (default 0.005)")
	ordersSeedCmd.Flags().Uint64Var(&ordersSeedRand, "seed", 0, "random seed (default time-based)")
	ordersCmd.AddCommand(ordersSeedCmd)
	rootCmd.AddCommand(ordersCmd)
}
