// Command transcoder runs the transcode worker, the reconciler, and
// read-only queue inspection, sharing one configuration surface
// loaded from the environment.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ripqueue/internal/logger"
	"ripqueue/internal/xerrors"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, xerrors.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	var logLevel string

	root := &cobra.Command{
		Use:           "transcoder",
		Short:         "Transcode worker, reconciler and queue inspection for ripqueue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "KEY=VALUE env file seeding unset variables (default none)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL for this process")

	root.AddCommand(newServeCommand(&envFile, &logLevel))
	root.AddCommand(newReconcileCommand(&envFile, &logLevel))
	root.AddCommand(newQueueCommand(&envFile, &logLevel))

	return root
}

func initLogging(levelOverride, configuredLevel string) {
	level := configuredLevel
	if levelOverride != "" {
		level = levelOverride
	}
	logger.Init(level)
}
