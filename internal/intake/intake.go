// Package intake bridges the bus's raw job payloads to the durable
// queue: every message is validated against the job envelope protocol
// before it is allowed anywhere near storage, and a bounded channel
// decouples the MQTT callback goroutine from the (potentially slow,
// for the SQLite backing) enqueue call.
package intake

import (
	"context"
	"os"

	"ripqueue/internal/logger"
	"ripqueue/internal/protocol"
	"ripqueue/internal/queue"
)

// channelCapacity bounds how many validated-but-not-yet-enqueued jobs
// can queue up behind a slow Put; once it is full, Handler enqueues
// directly instead of blocking.
const channelCapacity = 64

// Intake owns the handoff channel between the bus callback and the
// queue writer goroutine.
type Intake struct {
	subpaths protocol.Subpaths
	q        queue.Queue
	ch       chan protocol.Envelope
}

// New builds an Intake wired to q. Call Handler to get the function to
// pass to bus.Connect, and Run to start the writer goroutine loop.
func New(subpaths protocol.Subpaths, q queue.Queue) *Intake {
	return &Intake{subpaths: subpaths, q: q, ch: make(chan protocol.Envelope, channelCapacity)}
}

// Handler validates a raw bus payload and, if accepted, hands it to
// the writer loop. Rejections are logged and otherwise have no side
// effect: the bad payload is neither queued nor retried. A full
// channel falls back to enqueueing directly so the MQTT callback
// never blocks and a job is never dropped.
func (i *Intake) Handler(payload []byte) {
	env, err := protocol.Validate(payload, i.subpaths, pathExists)
	if err != nil {
		logger.Warn("rejected job envelope", "error", err)
		return
	}
	select {
	case i.ch <- env:
	default:
		logger.Warn("intake channel full, enqueueing directly", "path", env.Path)
		if err := i.q.Put(context.Background(), env); err != nil {
			logger.Error("failed to enqueue validated job", "path", env.Path, "error", err)
		}
	}
}

// Run drains validated envelopes into the queue until ctx is
// cancelled. Intended to run in its own goroutine, one per Intake.
func (i *Intake) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-i.ch:
			if err := i.q.Put(ctx, env); err != nil {
				logger.Error("failed to enqueue validated job", "path", env.Path, "error", err)
			}
		}
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
