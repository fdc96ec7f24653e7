package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/api"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/config"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/monitoring"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		eng, st, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		collector := monitoring.NewCollector(st, eng.Tracker(), eng.Ledger(), cfg.Anomaly.BoundaryCategory)
		if cfg.Monitoring.Enabled {
			guard := monitoring.NewGuard(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go guard.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildHandler(eng, st, collector, cfg),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildHandler wires the engine and store into the HTTP router. A nil
// engine leaves the decision routes unconfigured.
func buildHandler(eng *engine.Engine, st store.Store, status api.StatusCollector, c *config.Config) http.Handler {
	sc := c.Server
	var deps api.Deps
	if eng != nil {
		deps.Checker = eng
		deps.Anomalies = eng.Tracker()
		deps.Hotspots = eng.Ledger()
	}
	if st != nil {
		deps.Zones = st
		deps.Health = st
	}
	if status != nil {
		deps.Status = status
	}
	metrics, err := api.NewMetrics(nil)
	if err != nil {
		zap.L().Warn("metrics disabled", zap.Error(err))
	}
	return api.NewServer(deps).Router(api.Options{
		RateLimit:      sc.RateLimit,
		RateBurst:      sc.RateBurst,
		CORSOrigins:    sc.CORSOrigins,
		RequestTimeout: time.Duration(sc.RequestTimeoutSecs) * time.Second,

		StatusLookbackMinutes: c.Monitoring.LookbackMinutes,
		Metrics:               metrics,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
