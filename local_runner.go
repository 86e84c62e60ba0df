package duro

import (
	"context"
	"errors"
	"sync"

	"github.com/petrijr/duro/internal/engine"
	"github.com/petrijr/duro/internal/persistence"
	"github.com/petrijr/duro/internal/taskqueue"
	"github.com/petrijr/duro/pkg/worker"
)

// LocalRunner bundles an in-memory Engine and a Worker into a single
// process-local runtime for development, tests, and simple single-process
// deployments. Nothing is durable: a crash loses all state.
//
// Typical usage:
//
//	reg := duro.NewRegistry()
//	reg.MustAddOrchestrator("my-flow", myFlow)
//
//	runner := duro.NewLocalRunner(reg, duro.NewEntityRegistry())
//	runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//
//	id, _ := runner.Engine.StartOrchestration(ctx, "my-flow", input)
//	inst, _ := duro.WaitForCompletion(ctx, runner.Engine, id)
type LocalRunner struct {
	// Engine is the in-memory orchestration engine used by this runner.
	Engine Engine

	// Worker processes queued work items using Engine.
	Worker *worker.Worker

	eng       *engine.Engine
	workerCfg worker.Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLocalRunner constructs a LocalRunner with the given registries, an
// in-memory engine and queue, and a Worker with default config.
func NewLocalRunner(reg *Registry, ents *EntityRegistry, opts ...LocalRunnerOption) *LocalRunner {
	var o localRunnerOptions
	for _, opt := range opts {
		opt(&o)
	}

	mem := persistence.NewInMemoryStore()
	eng := engine.NewEngineWithConfig(engine.Config{
		Registry: reg,
		Entities: ents,
		Persistence: persistence.Persistence{
			Instances: mem,
			History:   mem,
			Entities:  mem,
		},
		Queue:    taskqueue.NewInMemoryQueue(0),
		Observer: o.observer,
	})

	return &LocalRunner{
		Engine:    eng,
		Worker:    worker.New(eng, eng.Queue(), o.workerConfig),
		eng:       eng,
		workerCfg: o.workerConfig,
	}
}

// LocalRunnerOption customizes NewLocalRunner.
type LocalRunnerOption func(*localRunnerOptions)

type localRunnerOptions struct {
	observer     Observer
	workerConfig worker.Config
}

// WithObserver attaches an Observer to the runner's engine.
func WithObserver(obs Observer) LocalRunnerOption {
	return func(o *localRunnerOptions) { o.observer = obs }
}

// WithWorkerConfig overrides the runner's worker configuration.
func WithWorkerConfig(cfg worker.Config) LocalRunnerOption {
	return func(o *localRunnerOptions) { o.workerConfig = cfg }
}

// StartWorkers starts worker goroutines that process queued work until Stop
// is called or ctx is cancelled. concurrency <= 0 keeps the configured
// worker concurrency.
//
// If StartWorkers is called again without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("duro: LocalRunner already started")
	}
	if concurrency > 0 {
		cfg := r.workerCfg
		cfg.Concurrency = concurrency
		r.Worker = worker.New(r.eng, r.eng.Queue(), cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	w, done := r.Worker, r.done
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	return nil
}

// Stop cancels the worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	<-done
}
