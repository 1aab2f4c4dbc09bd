package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/coinpulse/coinpulse/internal/api/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply identity store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.LoadConfig()
		logger := app.NewLogger(cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		if err := app.Migrate(ctx, cfg); err != nil {
			return err
		}

		logger.Info("migrations applied", "driver", cfg.StoreDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
