package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "maplink",
	Short:   "Command line client for the Maplink platform",
	Version: version,
	Long: `maplink calls the Maplink geocode, trip and planning APIs with the
credentials from maplink.yaml or MAPLINK_* environment variables, and can
run the webhook server that receives job callbacks and serves the monitor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is provided, print help
		return cmd.Help()
	},
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default: ./maplink.yaml)")
	flags.BoolP("verbose", "v", false, "Print every platform call to stderr")
	flags.Bool("no-color", false, "Disable colored output")
	flags.StringP("output", "o", "text", "Output format: text, json or yaml")
	flags.StringArray("var", []string{}, "Request file variable NAME=value (can be used multiple times)")

	RootCmd.AddCommand(geocodeCmd)
	RootCmd.AddCommand(tripCmd)
	RootCmd.AddCommand(planningCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(tokenCmd)
	RootCmd.AddCommand(modulesCmd)
}
