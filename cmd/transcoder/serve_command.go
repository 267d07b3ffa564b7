package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/google/uuid"

	"ripqueue/internal/bus"
	"ripqueue/internal/config"
	"ripqueue/internal/encode"
	"ripqueue/internal/gpulock"
	"ripqueue/internal/intake"
	"ripqueue/internal/logger"
	"ripqueue/internal/mediaprobe"
	"ripqueue/internal/protocol"
	"ripqueue/internal/queue"
	"ripqueue/internal/worker"
)

// errInterrupted signals the root command to exit 130, matching the
// shell convention for SIGINT/SIGTERM termination.
var errInterrupted = errors.New("interrupted")

func newServeCommand(envFile, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MQTT-driven transcode worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			initLogging(*logLevel, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	q, err := openQueue(cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	in := intake.New(protocol.Subpaths{Series: cfg.Roots.SeriesSubpath, Movie: cfg.Roots.MovieSubpath}, q)

	clientID := "ripqueue-worker-" + uuid.NewString()
	client, err := bus.ConnectWithRetry(cfg, clientID, in.Handler, 10, cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Close()

	prober := mediaprobe.New(cfg.FFprobeBin)
	runner := encode.NewRunner(cfg.FFmpegBin, "")
	lock := gpulock.New(cfg.GPULockPath)
	w := worker.New(cfg, q, client, prober, runner, lock)

	go in.Run(ctx)

	logger.Info("worker started", "queue_backend", cfg.QueueBackend, "broker", cfg.MQTTHost)
	w.Run(ctx)

	if ctx.Err() != nil {
		logger.Info("worker shutting down on signal")
		return errInterrupted
	}
	return nil
}

func openQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueVolatile:
		return queue.NewMemory(), nil
	default:
		return queue.OpenSQLite(cfg.QueueDBPath, cfg.PollInterval, cfg.ClaimTTL)
	}
}
