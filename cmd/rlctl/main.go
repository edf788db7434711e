package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatewaylabs/ratelimit/cmd/rlctl/commands"
	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	// Initialize logging
	if _, err := logging.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "rlctl",
		Short: "Rate limit service control CLI",
		Long: `rlctl is a command-line tool for operating the rate limit service.

It validates policy strings offline and talks to a running service's
admin API to run checks, inspect bucket state and reset buckets.

Common workflows:
  rlctl validate "1000;w=3600;u=cents;s=user"   # Validate a policy string
  rlctl check --policy "10;w=60" --org acme     # Run a check against the service
  rlctl bucket get rl:acme:global:request       # Inspect a bucket
  rlctl bucket reset rl:acme:global:request     # Reset a bucket

For detailed help on any command, use:
  rlctl <command> --help`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "Admin API base URL")

	// Add subcommands
	rootCmd.AddCommand(commands.NewValidateCmd())
	rootCmd.AddCommand(commands.NewCheckCmd())
	rootCmd.AddCommand(commands.NewBucketCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
