package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "zone-engine",
	Short: "Delivery zone authorization engine",
	Long:  "Decides whether a driver may accept orders at a location, detects surge zones from order density, and flags drivers outside the city boundary.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
