package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coinpulse",
	Short: "Coinpulse crypto price tracking API",
	Long: `Coinpulse serves market data to signed-in users.

Configuration is read from the environment (PORT, STORE_DRIVER, REDIS_ADDR,
OAUTH_CLIENT_ID, COINGECKO_API_KEY, ...).`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
