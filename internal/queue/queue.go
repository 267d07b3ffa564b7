// Package queue implements the durable job queue: put is non-blocking
// and persistent, get blocks until a claimable job exists and returns
// it with a fresh claim stamp, and task_done removes it. Two backings
// share this interface: Memory (volatile, in-process FIFO) and SQLite
// (persistent, single-writer, lease-based claim reclamation).
package queue

import (
	"context"
	"encoding/json"

	"ripqueue/internal/protocol"
)

// Item is a queued job as returned by Get: the envelope plus the
// opaque id task_done needs to release it.
type Item struct {
	ID       int64
	Envelope protocol.Envelope
}

// Queue is the contract both backings satisfy. Implementations must be
// safe for concurrent Get calls: concurrent Gets select distinct jobs.
type Queue interface {
	// Put enqueues env. Non-blocking; returns once the job is durably
	// recorded (for Memory, "durable" means "in the process's memory").
	Put(ctx context.Context, env protocol.Envelope) error

	// Get blocks until a claimable job exists or ctx is cancelled, and
	// returns it with a fresh claim stamp.
	Get(ctx context.Context) (Item, error)

	// TaskDone removes the job permanently. Called only after every
	// work item in the job has completed (successfully or with a
	// logged per-item error) — a failing item never causes a requeue.
	TaskDone(ctx context.Context, id int64) error

	Close() error
}

func encode(env protocol.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decode(payload []byte) (protocol.Envelope, error) {
	var env protocol.Envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
