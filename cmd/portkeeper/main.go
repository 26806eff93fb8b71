package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := &cobra.Command{
		Use:   "portkeeper",
		Short: "Supervisor for a single local server process",
		Long: `Portkeeper manages the lifecycle of one long-running server process:
start, stop, restart, crash recovery via a persisted PID record, and
resolution of port conflicts with foreign process trees.

Examples:
  portkeeper serve --config=portkeeper.toml   # run the supervisor daemon
  portkeeper status                           # ask the daemon for status
  portkeeper restart                          # restart the managed service`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "portkeeper.toml", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(apiFlags),
		createStopCommand(apiFlags),
		createRestartCommand(apiFlags),
		createStatusCommand(apiFlags),
		createRefreshCommand(apiFlags),
		createResolvePortCommand(apiFlags),
		createEventsCommand(apiFlags),
	)

	return root
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8127/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
