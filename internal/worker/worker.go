// Package worker implements the single-threaded transcode consumer:
// for each claimed job it enumerates work items, resolves stream plans
// and interlace decisions, runs the encoder state machine under the
// host GPU lock, emits lifecycle events, and acknowledges the queue
// only once every item has been handled.
package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"ripqueue/internal/bus"
	"ripqueue/internal/config"
	"ripqueue/internal/encode"
	"ripqueue/internal/gpulock"
	"ripqueue/internal/interlace"
	"ripqueue/internal/logger"
	"ripqueue/internal/mediaprobe"
	"ripqueue/internal/protocol"
	"ripqueue/internal/queue"
	"ripqueue/internal/streamplan"
)

// Worker runs the consumer loop against one queue, claiming jobs
// strictly serially: within a job, items are processed in order, and
// lifecycle events for item i precede any event for item i+1.
type Worker struct {
	cfg    *config.Config
	q      queue.Queue
	bus    *bus.Client
	prober *mediaprobe.Prober
	runner *encode.Runner
	lock   *gpulock.Lock
}

func New(cfg *config.Config, q queue.Queue, busClient *bus.Client, prober *mediaprobe.Prober, runner *encode.Runner, lock *gpulock.Lock) *Worker {
	return &Worker{cfg: cfg, q: q, bus: busClient, prober: prober, runner: runner, lock: lock}
}

// Run blocks, pulling one job at a time until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		item, err := w.q.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("queue get failed", "error", err)
			continue
		}
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.Item) {
	log := logger.WithJob(job.ID)
	items, err := Enumerate(job.Envelope, w.cfg.Roots)
	if err != nil {
		log.Error("failed to enumerate work items", "error", err)
		// A failing enumeration never re-queues the job; the reconciler
		// is the designated mechanism for re-driving missing outputs.
		w.ack(ctx, job.ID)
		return
	}

	for _, item := range items {
		w.processItem(ctx, job.Envelope, item, log)
	}
	w.ack(ctx, job.ID)
}

func (w *Worker) ack(ctx context.Context, id int64) {
	if err := w.q.TaskDone(ctx, id); err != nil {
		logger.Error("failed to ack queue item", "id", id, "error", err)
	}
}

func (w *Worker) processItem(ctx context.Context, env protocol.Envelope, item WorkItem, log *slog.Logger) {
	if Exists(item.Destination) {
		log.Debug("destination already exists, skipping", "source", item.Source)
		return
	}

	probed, err := w.prober.Probe(ctx, item.Source)
	if err != nil {
		w.publishError(item.Source, err)
		return
	}

	deinterlace := interlace.Decide(env.Interlaced, probed.FieldOrder, w.sampleIfNeeded(ctx, env.Interlaced, probed.FieldOrder, item.Source))
	plan := streamplan.Resolve(w.cfg, env.SourceType, probed.Audio, probed.Subtitles)
	targets := encode.DefaultQualityTargets(env.SourceType)

	opts := encode.Options{
		SourceCodec:      probed.VideoCodec,
		MaxHWRetries:     w.cfg.MaxHWRetries,
		SWFallbackEnable: w.cfg.EnableSWFallback,
		Deinterlace:      deinterlace,
		Plan:             plan,
		InputPath:        item.Source,
		OutputPath:       item.Destination,
		InputDuration:    probed.Duration,
		Targets:          targets,
		LockRetry:        500 * time.Millisecond,
	}

	onStart := func(accel encode.Accel) {
		ev := protocol.NewStatusEvent(protocol.StatusStart, item.Source)
		ev.Encoder = string(accel)
		if err := w.bus.PublishStatus(ev); err != nil {
			log.Warn("failed to publish start event", "error", err)
		}
	}

	outcome := encode.Run(ctx, w.runner, w.lock, w.probeOutputDuration, opts, onStart, nil)
	if !outcome.Succeeded {
		w.publishError(item.Source, outcome.Err)
		return
	}
	if outcome.DurationWarn != "" {
		log.Warn("output duration verification warning", "source", item.Source, "detail", outcome.DurationWarn)
	}
	log.Info("item encoded", "source", item.Source, "encoder", outcome.Encoder, "attempts", outcome.Attempts, "output_size", outputSizeHuman(item.Destination))

	ev := protocol.NewStatusEvent(protocol.StatusDone, item.Destination)
	if err := w.bus.PublishStatus(ev); err != nil {
		log.Warn("failed to publish done event", "error", err)
	}
}

func (w *Worker) sampleIfNeeded(ctx context.Context, hint *bool, fieldOrder, source string) []mediaprobe.FrameSample {
	if hint != nil || fieldOrder == "progressive" || isInterlacedFieldOrder(fieldOrder) {
		return nil
	}
	samples, err := w.prober.SampleFrames(ctx, source, interlace.SampleWindow)
	if err != nil {
		logger.Warn("frame sample analysis failed, falling back to conservative default", "source", source, "error", err)
		return nil
	}
	return samples
}

func isInterlacedFieldOrder(fo string) bool {
	switch fo {
	case "tt", "bb", "tb", "bt":
		return true
	}
	return false
}

func (w *Worker) probeOutputDuration(ctx context.Context, path string) (time.Duration, error) {
	res, err := w.prober.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return res.Duration, nil
}

func outputSizeHuman(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(st.Size()))
}

func (w *Worker) publishError(source string, cause error) {
	ev := protocol.NewStatusEvent(protocol.StatusError, source)
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := w.bus.PublishStatus(ev); err != nil {
		logger.Error("failed to publish error event", "source", source, "error", err)
	}
}
