package queue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ripqueue/internal/protocol"
)

func testEnvelope(path string) protocol.Envelope {
	return protocol.Envelope{
		Version:    protocol.SupportedVersion,
		Mode:       protocol.ModeMovie,
		SourceType: protocol.SourceDVD,
		Files:      []string{path},
	}
}

func TestMemoryPutGetFIFO(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()

	q.Put(ctx, testEnvelope("/a.mkv"))
	q.Put(ctx, testEnvelope("/b.mkv"))

	first, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Envelope.Files[0] != "/a.mkv" {
		t.Errorf("got %v, want /a.mkv first (FIFO)", first.Envelope.Files)
	}
}

func TestMemoryGetBlocksUntilPut(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx := context.Background()

	resultCh := make(chan Item, 1)
	go func() {
		item, err := q.Get(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		resultCh <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(ctx, testEnvelope("/c.mkv"))

	select {
	case item := <-resultCh:
		if item.Envelope.Files[0] != "/c.mkv" {
			t.Errorf("got %v", item.Envelope.Files)
		}
	case <-time.After(time.Second):
		t.Fatal("Get() did not unblock after Put")
	}
}

func TestMemoryGetRespectsContextCancel(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Get(ctx); err == nil {
		t.Fatal("expected Get() to return an error on context cancellation")
	}
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "queue.db"), 10*time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteClaimExclusivity(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Put(ctx, testEnvelope("/x.mkv"))
	}

	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			getCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			item, err := s.Get(getCtx)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			if seen[item.ID] {
				t.Errorf("job id %d claimed twice", item.ID)
			}
			seen[item.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 5 {
		t.Errorf("got %d distinct claims, want 5", len(seen))
	}
}

func TestSQLiteReclaimAfterTTL(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "queue.db"), 5*time.Millisecond, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	s.Put(ctx, testEnvelope("/y.mkv"))

	getCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	first, err := s.Get(getCtx)
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}

	// Simulate a crashed worker: never call TaskDone. After the TTL
	// elapses the same job must become claimable again exactly once.
	time.Sleep(40 * time.Millisecond)

	getCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	second, err := s.Get(getCtx2)
	if err != nil {
		t.Fatalf("reclaim Get() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("got reclaimed id %d, want %d", second.ID, first.ID)
	}
}

func TestSQLiteTaskDoneRemovesRow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	s.Put(ctx, testEnvelope("/z.mkv"))

	getCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	item, err := s.Get(getCtx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := s.TaskDone(ctx, item.ID); err != nil {
		t.Fatalf("TaskDone() error = %v", err)
	}

	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM queue_items WHERE id = ?", item.ID).Scan(&count)
	if count != 0 {
		t.Errorf("row still present after TaskDone")
	}
}

func TestSQLitePoisonPillDropped(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	s.db.Exec("INSERT INTO queue_items (payload, created_ts) VALUES (?, ?)", "not json", formatTime(time.Now()))
	s.Put(ctx, testEnvelope("/good.mkv"))

	getCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	item, err := s.Get(getCtx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if item.Envelope.Files[0] != "/good.mkv" {
		t.Errorf("expected poison pill skipped, got %v", item.Envelope.Files)
	}
}
