package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	actorID   string
	actorName string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "deskctl",
	Short:         "Operator commands for a running trade desk",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `deskctl talks to the trade desk HTTP API. It never touches the ledger
files directly, so the server stays the only writer.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TRADEDESK_URL", "http://localhost:8080"), "Trade desk base URL")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor-id", envOr("TRADEDESK_ACTOR_ID", "deskctl"), "Actor id sent with every request")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor-name", envOr("TRADEDESK_ACTOR_NAME", "deskctl"), "Actor name sent with every request")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClientFromFlags() *client {
	return newClient(serverURL, actorID, actorName, timeout)
}
