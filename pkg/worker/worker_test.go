package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/duro/internal/taskqueue"
)

// fakeProcessor records every item it sees and fails the ones whose
// InstanceID is listed in failing.
type fakeProcessor struct {
	mu      sync.Mutex
	seen    []taskqueue.Item
	failing map[string]error
}

func (p *fakeProcessor) ProcessItem(ctx context.Context, it *taskqueue.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, *it)
	if err, ok := p.failing[it.InstanceID]; ok {
		return err
	}
	return nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func quietConfig() Config {
	return Config{
		RetryDelay: time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestWorker_ProcessOneHandsItemToProcessor(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	p := &fakeProcessor{}
	w := New(p, q, quietConfig())
	ctx := context.Background()

	if err := q.Enqueue(ctx, taskqueue.Item{Type: taskqueue.ItemRunOrchestrator, InstanceID: "i-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if !processed || err != nil {
		t.Fatalf("expected clean processing, got processed=%v err=%v", processed, err)
	}
	if p.count() != 1 || p.seen[0].InstanceID != "i-1" {
		t.Fatalf("processor saw wrong items: %+v", p.seen)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained, %d items left", q.Len())
	}
}

func TestWorker_ProcessOneRespectsContext(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	w := New(&fakeProcessor{}, q, quietConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	processed, err := w.ProcessOne(ctx)
	if processed {
		t.Fatalf("nothing was enqueued, yet an item was processed")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWorker_FailedItemIsRetriedThenDropped(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	p := &fakeProcessor{failing: map[string]error{"bad": errors.New("boom")}}
	cfg := quietConfig()
	cfg.MaxAttempts = 3
	w := New(p, q, cfg)
	ctx := context.Background()

	if err := q.Enqueue(ctx, taskqueue.Item{Type: taskqueue.ItemRunActivity, InstanceID: "bad"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 3; i++ {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			t.Fatalf("attempt %d not processed: %v", i+1, err)
		}
		if err == nil {
			t.Fatalf("attempt %d unexpectedly succeeded", i+1)
		}
	}

	if p.count() != 3 {
		t.Fatalf("expected 3 attempts, processor saw %d", p.count())
	}
	// The third failure exhausts MaxAttempts; nothing is re-enqueued.
	if q.Len() != 0 {
		t.Fatalf("poison item still queued")
	}
}

func TestWorker_RetryDelaysEligibility(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	p := &fakeProcessor{failing: map[string]error{"bad": errors.New("boom")}}
	cfg := quietConfig()
	cfg.MaxAttempts = 2
	cfg.RetryDelay = 50 * time.Millisecond
	w := New(p, q, cfg)
	ctx := context.Background()

	if err := q.Enqueue(ctx, taskqueue.Item{Type: taskqueue.ItemRunActivity, InstanceID: "bad"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := w.ProcessOne(ctx); err == nil {
		t.Fatalf("expected failure")
	}

	start := time.Now()
	if _, err := w.ProcessOne(ctx); err == nil {
		t.Fatalf("expected failure on retry")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("retry became eligible after only %v", elapsed)
	}
}

func TestWorker_RunProcessesConcurrently(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(64)
	p := &fakeProcessor{}
	cfg := quietConfig()
	cfg.Concurrency = 4
	w := New(p, q, cfg)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 20; i++ {
		if err := q.Enqueue(ctx, taskqueue.Item{Type: taskqueue.ItemRunOrchestrator, InstanceID: "i"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for p.count() < 20 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 20 items processed", p.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Run, got %v", err)
	}
}
