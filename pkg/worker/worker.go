package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/duro/internal/taskqueue"
)

// Processor executes one work item. The orchestration engine implements it.
type Processor interface {
	ProcessItem(ctx context.Context, it *taskqueue.Item) error
}

// Config controls a Worker's loop behavior. The zero value is usable.
type Config struct {
	// Concurrency is the number of goroutines Run starts. Defaults to 1.
	Concurrency int

	// MaxAttempts is how many times an item is tried before it is dropped
	// as poison. Defaults to 3.
	MaxAttempts int

	// RetryDelay is the base delay before a failed item becomes eligible
	// again; it grows linearly with the attempt count. Defaults to 250ms.
	RetryDelay time.Duration

	// Logger receives poison-item drops and processing errors. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Worker pulls items from a queue and feeds them to a Processor.
type Worker struct {
	proc  Processor
	queue taskqueue.Queue
	cfg   Config
}

func New(proc Processor, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{proc: proc, queue: queue, cfg: cfg}
}

// ProcessOne pulls a single item from the queue and processes it. It blocks
// until an item is available or ctx is cancelled.
//
// Returns (processed, error):
//   - processed == false: nothing was dequeued; err carries the ctx error.
//   - processed == true: an item was handled; err is the processing error,
//     already subjected to the retry/poison policy.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	it, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if it == nil {
		return false, nil
	}

	err = w.proc.ProcessItem(ctx, it)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Shutdown mid-item: put it back untouched so another worker can
		// pick it up.
		w.requeue(it, false)
		return true, err
	}

	w.requeue(it, true)
	return true, err
}

// requeue returns a failed item to the queue, or drops it once it has
// exhausted its attempts.
func (w *Worker) requeue(it *taskqueue.Item, countAttempt bool) {
	item := *it
	if countAttempt {
		item.Attempts++
	}
	if item.Attempts >= w.cfg.MaxAttempts {
		w.cfg.Logger.Error("dropping poison work item",
			slog.String("type", string(item.Type)),
			slog.String("instance_id", item.InstanceID),
			slog.String("entity_id", item.EntityID),
			slog.Int("attempts", item.Attempts),
		)
		return
	}
	item.NotBefore = time.Now().Add(w.cfg.RetryDelay * time.Duration(item.Attempts))

	// Enqueue must not inherit the possibly-cancelled processing context.
	if err := w.queue.Enqueue(context.Background(), item); err != nil {
		w.cfg.Logger.Error("re-enqueue of failed work item lost",
			slog.String("type", string(item.Type)),
			slog.String("instance_id", item.InstanceID),
			slog.Any("error", err),
		)
	}
}

// Run processes items until ctx is cancelled, with cfg.Concurrency
// goroutines sharing the queue. Processing errors are logged and do not stop
// the loop. Run returns ctx.Err() after all goroutines have drained.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				processed, err := w.ProcessOne(ctx)
				if !processed && err != nil {
					return
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					w.cfg.Logger.Error("work item failed",
						slog.Any("error", err),
					)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}
