// Command selector picks the best Sentinel 2 product for every cell of a fine
// grid and serves the saved results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	jobFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "selector",
		Short: "Select the least cloudy Sentinel 2 product per grid cell",
		Long: "selector builds a fine grid over a region, assigns each cell to the Sentinel 2 tiles\n" +
			"containing it, searches a STAC catalog for the least cloudy complete product per tile\n" +
			"and writes the selection. Settings come from the environment and an optional job file.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.jobFile, "job", "", "YAML job file overriding environment settings (takes precedence over JOB_FILE)")

	cmd.AddCommand(newRunCommand(opts), newDatesCommand(opts), newServeCommand(opts))
	return cmd
}
