package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coinpulse/coinpulse/internal/api/app"
	"github.com/coinpulse/coinpulse/internal/api/service"
)

var workerInterval time.Duration

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Publish periodic price refresh triggers on Redis",
	Long: `The worker publishes {"trigger":"update"} on the crypto-events channel at
a fixed interval. API instances subscribed to the channel refresh their
cached market snapshot when it arrives. Requires REDIS_ADDR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.LoadConfig()
		if cmd.Flags().Changed("interval") {
			cfg.WorkerInterval = workerInterval
		}
		if cfg.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the worker")
		}
		logger := app.NewLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		broker, err := app.OpenRedis(connectCtx, cfg)
		cancel()
		if err != nil {
			return err
		}
		defer broker.Close()

		ticker := &service.PriceTicker{
			Publisher: broker,
			Logger:    logger,
			Interval:  cfg.WorkerInterval,
		}
		return ticker.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().DurationVar(&workerInterval, "interval", time.Minute, "Trigger interval (overrides WORKER_INTERVAL)")
}
