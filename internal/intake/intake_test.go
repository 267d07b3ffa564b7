package intake

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ripqueue/internal/protocol"
	"ripqueue/internal/queue"
)

// fakeQueue records every Put call; Get/TaskDone/Close are unused here.
type fakeQueue struct {
	mu   sync.Mutex
	puts []protocol.Envelope
}

func (f *fakeQueue) Put(_ context.Context, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, env)
	return nil
}
func (f *fakeQueue) Get(context.Context) (queue.Item, error) { return queue.Item{}, nil }
func (f *fakeQueue) TaskDone(context.Context, int64) error   { return nil }
func (f *fakeQueue) Close() error                            { return nil }

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func validPayload(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"version":     3,
		"mode":        "movie",
		"source_type": "bluray",
		"files":       []string{"/src/Movie/a.mkv"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandlerEnqueuesAcceptedEnvelope(t *testing.T) {
	fq := &fakeQueue{}
	in := New(protocol.Subpaths{Series: "Serien", Movie: "Filme"}, fq)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	in.Handler(validPayload(t))

	deadline := time.After(time.Second)
	for {
		if fq.count() == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("envelope was never enqueued")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestHandlerFallsBackToDirectPutWhenChannelFull(t *testing.T) {
	fq := &fakeQueue{}
	in := New(protocol.Subpaths{Series: "Serien", Movie: "Filme"}, fq)
	// No Run goroutine: the channel never drains, so it fills up.
	for i := 0; i < channelCapacity; i++ {
		in.ch <- protocol.Envelope{}
	}

	in.Handler(validPayload(t))

	if got := fq.count(); got != 1 {
		t.Fatalf("got %d direct puts, want 1 when the channel is full", got)
	}
}

func TestHandlerDropsRejectedPayload(t *testing.T) {
	fq := &fakeQueue{}
	in := New(protocol.Subpaths{}, fq)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	in.Handler([]byte(`{"version": 2, "files": ["/a.mkv"]}`))

	time.Sleep(20 * time.Millisecond)
	if fq.count() != 0 {
		t.Fatalf("got %d puts, want 0 for a rejected envelope", fq.count())
	}
}
