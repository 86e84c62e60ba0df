package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/duro/internal/persistence"
	"github.com/petrijr/duro/internal/taskqueue"
	"github.com/petrijr/duro/pkg/api"
	"github.com/petrijr/duro/pkg/entity"
	"github.com/petrijr/duro/pkg/orchestration"
)

// Engine is the in-process orchestration host. It owns durable instance and
// entity state, the work queue, and the scheduling of actions; the replay
// core in pkg/orchestration is stateless and invoked once per activation.
//
// Engine implements api.Engine. Workers drive it through ProcessItem.
type Engine struct {
	registry *orchestration.Registry
	entities *entity.Registry

	instances persistence.InstanceStore
	history   persistence.HistoryStore
	entStore  persistence.EntityStore

	queue    taskqueue.Queue
	observer api.Observer

	// ownerID identifies this host in activation leases.
	ownerID  string
	leaseTTL time.Duration

	// entityLocks serializes operation delivery per entity within this host.
	entityLocks sync.Map // entityID -> *sync.Mutex

	// waiters routes entity operation results back to in-process CallEntity
	// callers, keyed by request id.
	waitersMu sync.Mutex
	waiters   map[string]chan api.OperationResult
}

// Ensure Engine implements the public interface.
var _ api.Engine = (*Engine)(nil)

// Config describes how to construct an Engine.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Registry    *orchestration.Registry
	Entities    *entity.Registry
	Persistence persistence.Persistence
	Queue       taskqueue.Queue
	Observer    api.Observer

	// LeaseTTL bounds how long one activation may hold an instance before
	// another worker may steal it. Defaults to 30s.
	LeaseTTL time.Duration
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	reg := cfg.Registry
	if reg == nil {
		reg = orchestration.NewRegistry()
	}
	ents := cfg.Entities
	if ents == nil {
		ents = entity.NewRegistry()
	}
	return &Engine{
		registry:  reg,
		entities:  ents,
		instances: cfg.Persistence.Instances,
		history:   cfg.Persistence.History,
		entStore:  cfg.Persistence.Entities,
		queue:     cfg.Queue,
		observer:  obs,
		ownerID:   uuid.NewString(),
		leaseTTL:  ttl,
		waiters:   make(map[string]chan api.OperationResult),
	}
}

// NewInMemoryEngine returns an Engine backed by in-memory stores and an
// in-memory queue.
func NewInMemoryEngine(reg *orchestration.Registry, ents *entity.Registry) *Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Registry: reg,
		Entities: ents,
		Persistence: persistence.Persistence{
			Instances: mem,
			History:   mem,
			Entities:  mem,
		},
		Queue: taskqueue.NewInMemoryQueue(0),
	})
}

// NewSQLiteEngine returns an Engine with instance, history, entity and queue
// state persisted in the given SQLite database.
func NewSQLiteEngine(db *sql.DB, reg *orchestration.Registry, ents *entity.Registry) (*Engine, error) {
	return NewSQLiteEngineWithObserver(db, reg, ents, nil)
}

// NewSQLiteEngineWithObserver is NewSQLiteEngine with an Observer attached.
func NewSQLiteEngineWithObserver(db *sql.DB, reg *orchestration.Registry, ents *entity.Registry, obs api.Observer) (*Engine, error) {
	inst, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	hist, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		return nil, err
	}
	entStore, err := persistence.NewSQLiteEntityStore(db)
	if err != nil {
		return nil, err
	}
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{
		Registry: reg,
		Entities: ents,
		Persistence: persistence.Persistence{
			Instances: inst,
			History:   hist,
			Entities:  entStore,
		},
		Queue:    q,
		Observer: obs,
	}), nil
}

// Queue exposes the engine's work queue to the worker loop.
func (e *Engine) Queue() taskqueue.Queue { return e.queue }

func (e *Engine) StartOrchestration(ctx context.Context, name string, input any) (string, error) {
	return e.startInstance(ctx, name, input, "", "", 0)
}

// startInstance creates and persists a new instance record, seeds its
// history, and schedules the first activation. An empty id lets the host
// pick one.
func (e *Engine) startInstance(ctx context.Context, name string, input any, id, parentID string, parentTaskID int64) (string, error) {
	if _, err := e.registry.Orchestrator(name); err != nil {
		return "", err
	}

	if id == "" {
		id = uuid.NewString()
	}

	inst := &api.OrchestrationInstance{
		ID:           id,
		Name:         name,
		Status:       api.StatusPending,
		Input:        input,
		ParentID:     parentID,
		ParentTaskID: parentTaskID,
	}
	if err := e.instances.SaveInstance(inst); err != nil {
		return "", err
	}

	if err := e.history.AppendEvents(ctx, id, []api.HistoryEvent{
		{Type: api.EventOrchestratorStarted, At: time.Now()},
	}); err != nil {
		return "", err
	}

	e.observer.OnOrchestrationStarted(ctx, inst)

	if err := e.enqueueActivation(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (e *Engine) RaiseEvent(ctx context.Context, instanceID, name string, payload any) error {
	inst, err := e.instances.GetInstance(instanceID)
	if err != nil {
		return fmt.Errorf("instance not found: %s", instanceID)
	}
	if isTerminal(inst.Status) {
		// Events for finished instances are dropped.
		return nil
	}

	if err := e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{
		{Type: api.EventEventRaised, Name: name, Result: payload},
	}); err != nil {
		return err
	}
	return e.enqueueActivation(ctx, instanceID)
}

func (e *Engine) Terminate(ctx context.Context, instanceID string, output any) error {
	inst, err := e.instances.GetInstance(instanceID)
	if err != nil {
		return fmt.Errorf("instance not found: %s", instanceID)
	}
	if isTerminal(inst.Status) {
		return nil
	}

	inst.Status = api.StatusTerminated
	inst.Output = output
	inst.Failure = nil
	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}

	// A terminated child surfaces in its parent as a failed task.
	if inst.ParentID != "" {
		e.notifyParent(ctx, inst, nil, &api.FailureDetails{
			Kind:    api.FailureLogic,
			Message: fmt.Sprintf("sub-orchestration %s was terminated", inst.ID),
		})
	}
	return nil
}

func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*api.OrchestrationInstance, error) {
	inst, err := e.instances.GetInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}
	return inst, nil
}

func (e *Engine) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.OrchestrationInstance, error) {
	return e.instances.ListInstances(persistence.InstanceFilter{
		Name:   opts.Name,
		Status: opts.Status,
	})
}

func (e *Engine) GetHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	return e.history.ListEvents(ctx, instanceID)
}

func (e *Engine) SignalEntity(ctx context.Context, entityID, operation string, input any) error {
	return e.queue.Enqueue(ctx, taskqueue.Item{
		ID:       uuid.NewString(),
		Type:     taskqueue.ItemEntityBatch,
		EntityID: entityID,
		Name:     operation,
		Payload:  input,
	})
}

func (e *Engine) CallEntity(ctx context.Context, entityID, operation string, input any) (any, error) {
	requestID := uuid.NewString()

	ch := make(chan api.OperationResult, 1)
	e.waitersMu.Lock()
	e.waiters[requestID] = ch
	e.waitersMu.Unlock()
	defer func() {
		e.waitersMu.Lock()
		delete(e.waiters, requestID)
		e.waitersMu.Unlock()
	}()

	if err := e.queue.Enqueue(ctx, taskqueue.Item{
		ID:        uuid.NewString(),
		Type:      taskqueue.ItemEntityBatch,
		EntityID:  entityID,
		Name:      operation,
		RequestID: requestID,
		Payload:   input,
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Failure != nil {
			return nil, res.Failure
		}
		return res.Value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) GetEntity(ctx context.Context, entityID string) (*api.EntityInstance, error) {
	ent, err := e.entStore.GetEntity(entityID)
	if err != nil {
		return nil, fmt.Errorf("entity not found: %s", entityID)
	}
	return ent, nil
}

// RecoverStuckInstances re-schedules work for running instances whose
// activation lease has lapsed, typically after a crash between recording
// scheduled tasks and enqueueing their work items. Re-enqueued activities
// may run a second time; completions for already settled tasks are ignored
// by the replay.
func (e *Engine) RecoverStuckInstances(ctx context.Context) (int, error) {
	stuck := 0
	for _, status := range []api.Status{api.StatusPending, api.StatusRunning} {
		insts, err := e.instances.ListInstances(persistence.InstanceFilter{Status: status})
		if err != nil {
			return stuck, err
		}
		for _, inst := range insts {
			probe := "recover-" + uuid.NewString()
			acquired, err := e.instances.TryAcquireLease(ctx, inst.ID, probe, time.Second)
			if err != nil {
				return stuck, err
			}
			if !acquired {
				// A live worker holds the lease; nothing to recover.
				continue
			}

			if err := e.requeuePendingWork(ctx, inst.ID); err != nil {
				_ = e.instances.ReleaseLease(ctx, inst.ID, probe)
				return stuck, err
			}
			_ = e.instances.ReleaseLease(ctx, inst.ID, probe)

			if err := e.enqueueActivation(ctx, inst.ID); err != nil {
				return stuck, err
			}
			stuck++
		}
	}
	return stuck, nil
}

// requeuePendingWork re-derives unfinished work from an instance's history:
// every task-scheduled event without a matching completion gets its activity,
// timer, or entity-signal item enqueued again, and sub-orchestration children
// that were recorded but never started are started now. Recovery is
// at-least-once; duplicate completions are ignored by replay.
func (e *Engine) requeuePendingWork(ctx context.Context, instanceID string) error {
	events, err := e.history.ListEvents(ctx, instanceID)
	if err != nil {
		return err
	}

	scheduled := make(map[int64]*api.Action)
	for _, ev := range events {
		switch ev.Type {
		case api.EventTaskScheduled:
			if ev.Action != nil {
				scheduled[ev.TaskID] = ev.Action
			}
		case api.EventTaskCompleted, api.EventTaskFailed, api.EventTimerFired,
			api.EventSubOrchestrationCompleted, api.EventSubOrchestrationFailed:
			delete(scheduled, ev.TaskID)
		}
	}

	for taskID, a := range scheduled {
		switch a.Type {
		case api.ActionCallActivity:
			if err := e.queue.Enqueue(ctx, taskqueue.Item{
				ID:         uuid.NewString(),
				Type:       taskqueue.ItemRunActivity,
				InstanceID: instanceID,
				TaskID:     taskID,
				Name:       a.Name,
				Payload:    a.Input,
			}); err != nil {
				return err
			}
		case api.ActionCreateTimer:
			if err := e.queue.Enqueue(ctx, taskqueue.Item{
				ID:         uuid.NewString(),
				Type:       taskqueue.ItemFireTimer,
				InstanceID: instanceID,
				TaskID:     taskID,
				NotBefore:  a.FireAt,
			}); err != nil {
				return err
			}
		case api.ActionCallSubOrchestrator:
			if err := e.recoverSubOrchestration(ctx, instanceID, taskID, a); err != nil {
				return err
			}
		case api.ActionSendEntitySignal:
			if err := e.queue.Enqueue(ctx, taskqueue.Item{
				ID:       uuid.NewString(),
				Type:     taskqueue.ItemEntityBatch,
				EntityID: a.EntityID,
				Name:     a.Name,
				Payload:  a.Input,
			}); err != nil {
				return err
			}
			if err := e.markSignalDelivered(ctx, instanceID, *a); err != nil {
				return err
			}
		}
	}
	return nil
}

// recoverSubOrchestration settles a recorded call-sub-orchestrator task whose
// completion never reached the parent: a child that was never started is
// started, a finished child re-notifies the parent.
func (e *Engine) recoverSubOrchestration(ctx context.Context, parentID string, taskID int64, a *api.Action) error {
	child, err := e.instances.GetInstance(a.InstanceID)
	switch {
	case errors.Is(err, persistence.ErrInstanceNotFound):
		_, serr := e.startInstance(ctx, a.Name, a.Input, a.InstanceID, parentID, taskID)
		if serr != nil && !errors.Is(serr, persistence.ErrInstanceExists) {
			return e.failTask(ctx, parentID, taskID, &api.FailureDetails{
				Kind:    api.FailureLogic,
				Message: serr.Error(),
			})
		}
		return nil
	case err != nil:
		return err
	}

	switch child.Status {
	case api.StatusCompleted:
		e.notifyParent(ctx, child, child.Output, nil)
	case api.StatusFailed:
		e.notifyParent(ctx, child, nil, child.Failure)
	case api.StatusTerminated:
		e.notifyParent(ctx, child, nil, &api.FailureDetails{
			Kind:    api.FailureLogic,
			Message: fmt.Sprintf("sub-orchestration %s was terminated", child.ID),
		})
	}
	return nil
}

func (e *Engine) enqueueActivation(ctx context.Context, instanceID string) error {
	return e.queue.Enqueue(ctx, taskqueue.Item{
		ID:         uuid.NewString(),
		Type:       taskqueue.ItemRunOrchestrator,
		InstanceID: instanceID,
	})
}

func (e *Engine) entityLock(entityID string) *sync.Mutex {
	mu, _ := e.entityLocks.LoadOrStore(entityID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (e *Engine) deliverResult(res api.OperationResult) {
	e.waitersMu.Lock()
	ch, ok := e.waiters[res.RequestID]
	if ok {
		delete(e.waiters, res.RequestID)
	}
	e.waitersMu.Unlock()
	if ok {
		ch <- res
	}
}

func isTerminal(s api.Status) bool {
	switch s {
	case api.StatusCompleted, api.StatusFailed, api.StatusTerminated:
		return true
	}
	return false
}
