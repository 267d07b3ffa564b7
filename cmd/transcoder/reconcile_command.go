package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/google/uuid"

	"ripqueue/internal/bus"
	"ripqueue/internal/config"
	"ripqueue/internal/mediaprobe"
	"ripqueue/internal/reconcile"
)

func newReconcileCommand(envFile, logLevel *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Diff the source and destination trees and republish missing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			file := *envFile
			if file == "" {
				file = "/etc/ripqueue.env"
			}
			cfg, err := config.Load(file)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			initLogging(*logLevel, cfg.LogLevel)

			prober := mediaprobe.New(cfg.FFprobeBin)

			var client *bus.Client
			if !dryRun {
				client, err = bus.ConnectWithRetry(cfg, "ripqueue-reconcile-"+uuid.NewString(), nil, 5, cfg.PollInterval)
				if err != nil {
					return fmt.Errorf("connect to broker: %w", err)
				}
				defer client.Close()
			}

			return reconcile.Run(cmd.Context(), cfg, prober, client, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and log envelopes without opening a broker connection")
	return cmd
}
