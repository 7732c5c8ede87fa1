package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentmon",
		Short: "Background agent process monitor",
		Long: "agentmon tracks background AI-agent processes: registration, heartbeat\n" +
			"metrics, liveness queries, termination and cleanup. Run 'agentmon serve'\n" +
			"to start the daemon; the other commands talk to a running daemon.",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())

	api := &apiFlags{}
	for _, build := range []func(*apiFlags) *cobra.Command{
		newRegisterCmd,
		newHeartbeatCmd,
		newListCmd,
		newMetricsCmd,
		newTerminateCmd,
		newLogsCmd,
		newEventCmd,
		newCleanupCmd,
	} {
		cmd := build(api)
		cmd.Flags().StringVar(&api.url, "api-url", "http://127.0.0.1:8420/api", "daemon API base URL")
		cmd.Flags().DurationVar(&api.timeout, "timeout", 0, "API request timeout (0 = default)")
		root.AddCommand(cmd)
	}
	return root
}
