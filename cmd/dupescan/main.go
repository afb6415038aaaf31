package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := runApp(ctx, a, newRootCmd(a)); err != nil {
		return 1
	}
	return 0
}

// runApp executes root and releases what setup opened, even on failure.
func runApp(ctx context.Context, a *app, root *cobra.Command) error {
	defer a.teardown()
	return root.ExecuteContext(ctx)
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "dupescan",
		Short:             "Find duplicate files by content",
		Version:           version + " (" + commit + ")",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.global.configFile, "config", "", "YAML configuration file")
	flags.StringVarP(&a.global.database, "database", "d", "", "SQLite index file (default in memory)")
	flags.StringVarP(&a.global.verbosity, "verbosity", "v", "", "Log level: DEBUG, INFO, WARN, ERROR, CRITICAL (default WARN)")
	flags.StringVarP(&a.global.logFile, "log", "l", "", "Log file (default stderr)")
	flags.StringVar(&a.global.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&a.global.noProgress, "no-progress", false, "Disable progress output")

	root.AddCommand(newFindCmd(a), newServeCmd(a), newRmCmd(a))
	return root
}
