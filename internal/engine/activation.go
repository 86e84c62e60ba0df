package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/duro/internal/persistence"
	"github.com/petrijr/duro/internal/taskqueue"
	"github.com/petrijr/duro/pkg/api"
	"github.com/petrijr/duro/pkg/entity"
	"github.com/petrijr/duro/pkg/orchestration"
)

// leaseBusyRetry is how long an activation item is pushed back when another
// worker holds the instance lease.
const leaseBusyRetry = 50 * time.Millisecond

// ProcessItem executes one dequeued work item. It is the single entry point
// the worker loop drives the engine through.
func (e *Engine) ProcessItem(ctx context.Context, it *taskqueue.Item) error {
	switch it.Type {
	case taskqueue.ItemRunOrchestrator:
		return e.runActivation(ctx, it.InstanceID)
	case taskqueue.ItemRunActivity:
		return e.runActivity(ctx, it)
	case taskqueue.ItemFireTimer:
		return e.fireTimer(ctx, it)
	case taskqueue.ItemEntityBatch:
		return e.processEntityBatch(ctx, it)
	default:
		return fmt.Errorf("unknown work item type %q", it.Type)
	}
}

// runActivation replays one instance against its history under the
// activation lease, records the actions the activation emitted, and
// schedules the work they ask for.
func (e *Engine) runActivation(ctx context.Context, instanceID string) error {
	inst, err := e.instances.GetInstance(instanceID)
	if err != nil {
		return err
	}
	if isTerminal(inst.Status) {
		// Stale activation for a finished instance.
		return nil
	}

	acquired, err := e.instances.TryAcquireLease(ctx, instanceID, e.ownerID, e.leaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		// Another worker is activating this instance; try again shortly.
		return e.queue.Enqueue(ctx, taskqueue.Item{
			ID:         uuid.NewString(),
			Type:       taskqueue.ItemRunOrchestrator,
			InstanceID: instanceID,
			NotBefore:  time.Now().Add(leaseBusyRetry),
		})
	}
	defer func() {
		_ = e.instances.ReleaseLease(ctx, instanceID, e.ownerID)
	}()

	// Every activation after the first opens with a fresh started event so
	// the orchestration clock advances monotonically.
	if inst.ConsumedSeq > 0 {
		if err := e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{
			{Type: api.EventOrchestratorStarted, At: time.Now()},
		}); err != nil {
			return err
		}
	}

	events, err := e.history.ListEvents(ctx, instanceID)
	if err != nil {
		return err
	}

	split := 0
	for split < len(events) && events[split].Seq <= inst.ConsumedSeq {
		split++
	}
	oldEvents, newEvents := events[:split], events[split:]

	st := orchestration.Execute(e.registry, inst.ID, inst.Name, inst.Input, oldEvents, newEvents)

	consumed := inst.ConsumedSeq
	if len(events) > 0 {
		consumed = events[len(events)-1].Seq
	}

	// A replay that diverged from history must not schedule anything: the
	// emitted actions came from the wrong code path.
	schedule := st.Actions
	if st.Failure != nil && st.Failure.Kind == api.FailureNonDeterminism {
		schedule = nil
	}

	if len(schedule) > 0 {
		recorded := make([]api.HistoryEvent, len(schedule))
		for i := range schedule {
			// The child instance id must be part of the durable record:
			// recovery needs it to tell a started child from a lost one.
			if schedule[i].Type == api.ActionCallSubOrchestrator && schedule[i].InstanceID == "" {
				schedule[i].InstanceID = uuid.NewString()
			}
			a := schedule[i]
			recorded[i] = api.HistoryEvent{
				Type:   api.EventTaskScheduled,
				TaskID: a.TaskID,
				Name:   a.Name,
				Action: &a,
			}
		}
		if err := e.history.AppendEvents(ctx, instanceID, recorded); err != nil {
			return err
		}
		consumed = recorded[len(recorded)-1].Seq
	}

	inst.ConsumedSeq = consumed
	inst.CustomStatus = st.CustomStatus

	switch {
	case st.IsDone && st.Failure != nil:
		inst.Status = api.StatusFailed
		inst.Failure = st.Failure
		inst.Output = nil
	case st.IsDone:
		inst.Status = api.StatusCompleted
		inst.Output = st.Output
		inst.Failure = nil
	default:
		inst.Status = api.StatusRunning
	}

	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}

	// Work items go out only after the scheduled actions are durably part
	// of history.
	for _, a := range schedule {
		if err := e.dispatchAction(ctx, inst, a); err != nil {
			return err
		}
		e.observer.OnActionScheduled(ctx, inst, a)
	}

	switch {
	case st.IsDone && st.Failure != nil:
		e.observer.OnOrchestrationFailed(ctx, inst, st.Failure)
		if inst.ParentID != "" {
			e.notifyParent(ctx, inst, nil, st.Failure)
		}
	case st.IsDone:
		e.observer.OnOrchestrationCompleted(ctx, inst)
		if inst.ParentID != "" {
			e.notifyParent(ctx, inst, st.Output, nil)
		}
	default:
		e.observer.OnOrchestrationSuspended(ctx, inst, len(schedule))
	}
	return nil
}

// dispatchAction turns one recorded action into the queue item or child
// instance it asks for. Wait-for-event actions need no work item; their
// completion arrives with the external event.
func (e *Engine) dispatchAction(ctx context.Context, inst *api.OrchestrationInstance, a api.Action) error {
	switch a.Type {
	case api.ActionCallActivity:
		return e.queue.Enqueue(ctx, taskqueue.Item{
			ID:         uuid.NewString(),
			Type:       taskqueue.ItemRunActivity,
			InstanceID: inst.ID,
			TaskID:     a.TaskID,
			Name:       a.Name,
			Payload:    a.Input,
		})

	case api.ActionCreateTimer:
		return e.queue.Enqueue(ctx, taskqueue.Item{
			ID:         uuid.NewString(),
			Type:       taskqueue.ItemFireTimer,
			InstanceID: inst.ID,
			TaskID:     a.TaskID,
			NotBefore:  a.FireAt,
		})

	case api.ActionWaitForEvent:
		return nil

	case api.ActionCallSubOrchestrator:
		_, err := e.startInstance(ctx, a.Name, a.Input, a.InstanceID, inst.ID, a.TaskID)
		if err != nil {
			// A child that cannot start settles the parent task as failed.
			return e.failTask(ctx, inst.ID, a.TaskID, &api.FailureDetails{
				Kind:    api.FailureLogic,
				Message: err.Error(),
			})
		}
		return nil

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
		// Signals get no reply, so mark delivery in history. Recovery
		// re-sends only unmarked signals; replay ignores the marker.
		return e.markSignalDelivered(ctx, inst.ID, a)

	case api.ActionStartOrchestration:
		_, err := e.startInstance(ctx, a.Name, a.Input, a.InstanceID, "", 0)
		if err != nil && !errors.Is(err, persistence.ErrInstanceExists) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// markSignalDelivered records a completion for an entity-signal task once
// its work item is queued. The crash window between enqueue and marker means
// at-least-once delivery after recovery.
func (e *Engine) markSignalDelivered(ctx context.Context, instanceID string, a api.Action) error {
	return e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{
		{Type: api.EventTaskCompleted, TaskID: a.TaskID, Name: a.Name},
	})
}

// failTask records a task-failed event and wakes the instance.
func (e *Engine) failTask(ctx context.Context, instanceID string, taskID int64, f *api.FailureDetails) error {
	if err := e.history.AppendEvents(ctx, instanceID, []api.HistoryEvent{
		{Type: api.EventTaskFailed, TaskID: taskID, Failure: f},
	}); err != nil {
		return err
	}
	return e.enqueueActivation(ctx, instanceID)
}

// notifyParent settles the parent task awaiting a finished sub-orchestration.
func (e *Engine) notifyParent(ctx context.Context, child *api.OrchestrationInstance, output any, failure *api.FailureDetails) {
	parent, err := e.instances.GetInstance(child.ParentID)
	if err != nil || isTerminal(parent.Status) {
		return
	}

	ev := api.HistoryEvent{TaskID: child.ParentTaskID}
	if failure != nil {
		ev.Type = api.EventSubOrchestrationFailed
		ev.Failure = failure
	} else {
		ev.Type = api.EventSubOrchestrationCompleted
		ev.Result = output
	}

	if err := e.history.AppendEvents(ctx, child.ParentID, []api.HistoryEvent{ev}); err != nil {
		return
	}
	_ = e.enqueueActivation(ctx, child.ParentID)
}

// runActivity executes one activity invocation and records its outcome.
func (e *Engine) runActivity(ctx context.Context, it *taskqueue.Item) error {
	inst, err := e.instances.GetInstance(it.InstanceID)
	if err != nil {
		return err
	}
	if isTerminal(inst.Status) {
		// Abandoned work for a finished instance.
		return nil
	}

	var (
		out  any
		aerr error
	)
	start := time.Now()
	fn, aerr := e.registry.Activity(it.Name)
	if aerr == nil {
		out, aerr = fn(ctx, it.Payload)
	}
	e.observer.OnActivityCompleted(ctx, it.InstanceID, it.TaskID, it.Name, aerr, time.Since(start))

	var ev api.HistoryEvent
	if aerr != nil {
		ev = api.HistoryEvent{
			Type:    api.EventTaskFailed,
			TaskID:  it.TaskID,
			Name:    it.Name,
			Failure: &api.FailureDetails{Kind: api.FailureActivity, Message: aerr.Error()},
		}
	} else {
		ev = api.HistoryEvent{
			Type:   api.EventTaskCompleted,
			TaskID: it.TaskID,
			Name:   it.Name,
			Result: out,
		}
	}

	if err := e.history.AppendEvents(ctx, it.InstanceID, []api.HistoryEvent{ev}); err != nil {
		return err
	}
	return e.enqueueActivation(ctx, it.InstanceID)
}

// fireTimer records that a durable timer came due.
func (e *Engine) fireTimer(ctx context.Context, it *taskqueue.Item) error {
	inst, err := e.instances.GetInstance(it.InstanceID)
	if err != nil {
		return err
	}
	if isTerminal(inst.Status) {
		return nil
	}

	if err := e.history.AppendEvents(ctx, it.InstanceID, []api.HistoryEvent{
		{Type: api.EventTimerFired, TaskID: it.TaskID},
	}); err != nil {
		return err
	}
	return e.enqueueActivation(ctx, it.InstanceID)
}

// processEntityBatch delivers queued operations to an entity, exactly once
// and in order, then commits the new state and executes whatever the batch
// emitted. Delivery is serialized per entity.
func (e *Engine) processEntityBatch(ctx context.Context, it *taskqueue.Item) error {
	mu := e.entityLock(it.EntityID)
	mu.Lock()
	defer mu.Unlock()

	current := api.EntityInstance{ID: it.EntityID}
	if ent, err := e.entStore.GetEntity(it.EntityID); err == nil {
		current = *ent
	}

	batch := []api.Operation{{
		Name:      it.Name,
		Input:     it.Payload,
		RequestID: it.RequestID,
	}}

	st := entity.Process(e.entities, it.EntityID, current, batch)

	err := e.entStore.SaveEntity(&api.EntityInstance{
		ID:        it.EntityID,
		State:     st.State,
		Tombstone: st.Tombstone,
	})
	e.observer.OnEntityBatchProcessed(ctx, it.EntityID, len(batch), err)
	if err != nil {
		return err
	}

	for _, a := range st.Actions {
		switch a.Type {
		case api.ActionSendEntitySignal:
			if qerr := e.queue.Enqueue(ctx, taskqueue.Item{
				ID:       uuid.NewString(),
				Type:     taskqueue.ItemEntityBatch,
				EntityID: a.EntityID,
				Name:     a.Name,
				Payload:  a.Input,
			}); qerr != nil {
				return qerr
			}
		case api.ActionStartOrchestration:
			if _, serr := e.startInstance(ctx, a.Name, a.Input, a.InstanceID, "", 0); serr != nil &&
				!errors.Is(serr, persistence.ErrInstanceExists) {
				return serr
			}
		}
	}

	for _, res := range st.Results {
		e.deliverResult(res)
	}
	return nil
}
