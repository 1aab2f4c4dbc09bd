package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "migrate", "worker"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, c.Name())
	}
}

func TestWorkerRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	rootCmd.SetArgs([]string{"worker"})
	require.ErrorContains(t, rootCmd.Execute(), "REDIS_ADDR")
}
