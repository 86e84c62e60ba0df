package orchestration

import (
	"fmt"
	"sort"
	"time"

	"github.com/petrijr/duro/pkg/api"
)

// Context is the single-activation execution state of one orchestration
// instance. It owns the sequence counter, the history cursor, and the
// bookkeeping that correlates scheduled actions with their completions.
// A Context lives for exactly one call to Execute and is never shared.
type Context struct {
	id    string
	name  string
	input any

	registry *Registry

	replaying    bool
	started      bool
	currentTime  time.Time
	customStatus any

	oldEvents    []api.HistoryEvent
	newEvents    []api.HistoryEvent
	historyIndex int

	// seq is the per-activation sequence counter. It is reset to zero for
	// every activation and advances only on task creation, so unrelated
	// history events can never shift task ids between replays.
	seq             int64
	pendingActions  map[int64]*api.Action
	pendingTasks    map[int64]*completableTask
	completionOrder int

	// External events correlate by name, not task id. Early arrivals are
	// buffered FIFO until a waiter shows up.
	bufferedEvents    map[string][]any
	pendingEventTasks map[string][]*completableTask

	done    bool
	output  any
	failure *api.FailureDetails
}

// Execute runs one activation of the named orchestrator against the
// instance's history. oldEvents were consumed by earlier activations and are
// replayed; newEvents arrived since. The returned state carries the actions
// created past the end of history, and the final outcome if user logic ran
// to completion.
//
// Execute holds no state between calls: replaying the same input and
// history always yields the same state.
func Execute(reg *Registry, instanceID, name string, input any, oldEvents, newEvents []api.HistoryEvent) api.OrchestratorState {
	c := &Context{
		id:                instanceID,
		name:              name,
		input:             input,
		registry:          reg,
		oldEvents:         oldEvents,
		newEvents:         newEvents,
		pendingActions:    make(map[int64]*api.Action),
		pendingTasks:      make(map[int64]*completableTask),
		bufferedEvents:    make(map[string][]any),
		pendingEventTasks: make(map[string][]*completableTask),
	}
	return c.run()
}

func (c *Context) run() (st api.OrchestratorState) {
	defer func() {
		switch r := recover(); {
		case r == nil, r == errTaskBlocked:
			// Suspension is the normal way an activation ends.
		default:
			if f, ok := r.(fatalError); ok {
				c.failWith(api.FailureFromError(f.err))
			} else {
				// A panic escaping user code is recorded as the
				// orchestration's failure, not the host's.
				c.failWith(&api.FailureDetails{
					Kind:    api.FailureLogic,
					Message: fmt.Sprintf("orchestrator panic: %v", r),
				})
			}
		}
		st = c.state()
	}()

	for {
		e, ok := c.nextHistoryEvent()
		if !ok {
			break
		}
		if err := c.processEvent(e); err != nil {
			c.failWith(api.FailureFromError(err))
			break
		}
	}
	return
}

func (c *Context) nextHistoryEvent() (api.HistoryEvent, bool) {
	if c.historyIndex < len(c.oldEvents) {
		c.replaying = true
		e := c.oldEvents[c.historyIndex]
		c.historyIndex++
		return e, true
	}
	idx := c.historyIndex - len(c.oldEvents)
	if idx < len(c.newEvents) {
		c.replaying = false
		e := c.newEvents[idx]
		c.historyIndex++
		return e, true
	}
	return api.HistoryEvent{}, false
}

// pump consumes one history event on behalf of an Await that is still
// pending. When history is exhausted the activation unwinds; engine-level
// failures unwind harder, through any user error handling.
func (c *Context) pump() {
	e, ok := c.nextHistoryEvent()
	if !ok {
		panic(errTaskBlocked)
	}
	if err := c.processEvent(e); err != nil {
		panic(fatalError{err})
	}
}

func (c *Context) processEvent(e api.HistoryEvent) error {
	switch e.Type {
	case api.EventOrchestratorStarted:
		c.currentTime = e.At
		if !c.started {
			c.started = true
			c.invokeOrchestrator()
		}

	case api.EventTaskScheduled:
		return c.onTaskScheduled(e)

	case api.EventTaskCompleted, api.EventSubOrchestrationCompleted:
		c.completeTask(e.TaskID, e.Result, nil)

	case api.EventTaskFailed, api.EventSubOrchestrationFailed:
		c.completeTask(e.TaskID, nil, e.Failure)

	case api.EventTimerFired:
		c.completeTask(e.TaskID, nil, nil)

	case api.EventEventRaised:
		c.onEventRaised(e)

	default:
		return fmt.Errorf("unknown history event type %q", e.Type)
	}
	return nil
}

func (c *Context) invokeOrchestrator() {
	fn, err := c.registry.Orchestrator(c.name)
	if err != nil {
		c.failWith(&api.FailureDetails{Kind: api.FailureLogic, Message: err.Error()})
		return
	}

	out, err := fn(c)
	if err != nil {
		c.failWith(api.FailureFromError(err))
		return
	}
	c.done = true
	c.output = out
}

// onTaskScheduled validates that the replay created the same action, at the
// same sequence number, that a previous activation recorded. A mismatch
// means the orchestration took a different path than history and can no
// longer be replayed safely.
func (c *Context) onTaskScheduled(e api.HistoryEvent) error {
	a, ok := c.pendingActions[e.TaskID]
	if !ok {
		return &api.NonDeterminismError{
			TaskID: e.TaskID,
			Reason: "history records a scheduled action here, but the current execution created none",
		}
	}
	if e.Action != nil && (a.Type != e.Action.Type || a.Name != e.Action.Name) {
		return &api.NonDeterminismError{
			TaskID: e.TaskID,
			Reason: fmt.Sprintf("history scheduled %s %q, current execution created %s %q",
				e.Action.Type, e.Action.Name, a.Type, a.Name),
		}
	}
	delete(c.pendingActions, e.TaskID)
	return nil
}

// completeTask resolves the pending task with the given id. Completions for
// unknown ids are ignored: they belong to tasks a diverged or finished code
// path abandoned, which is a documented hazard rather than an error.
func (c *Context) completeTask(id int64, result any, failure *api.FailureDetails) {
	t, ok := c.pendingTasks[id]
	if !ok {
		return
	}
	delete(c.pendingTasks, id)
	if failure != nil {
		t.fail(failure)
		return
	}
	t.complete(result)
}

func (c *Context) onEventRaised(e api.HistoryEvent) {
	if waiters := c.pendingEventTasks[e.Name]; len(waiters) > 0 {
		t := waiters[0]
		if len(waiters) > 1 {
			c.pendingEventTasks[e.Name] = waiters[1:]
		} else {
			delete(c.pendingEventTasks, e.Name)
		}
		t.complete(e.Result)
		return
	}
	c.bufferedEvents[e.Name] = append(c.bufferedEvents[e.Name], e.Result)
}

func (c *Context) failWith(f *api.FailureDetails) {
	c.done = true
	c.output = nil
	c.failure = f
}

// state assembles the OrchestratorState handed back to the host: every
// action still pending (never seen in history), in creation order.
func (c *Context) state() api.OrchestratorState {
	if c.failure != nil && c.failure.Kind == api.FailureNonDeterminism {
		// A diverged replay cannot be trusted to schedule new work.
		return api.OrchestratorState{
			IsDone:       c.done,
			Failure:      c.failure,
			CustomStatus: c.customStatus,
		}
	}

	ids := make([]int64, 0, len(c.pendingActions))
	for id := range c.pendingActions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	actions := make([]api.Action, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, *c.pendingActions[id])
	}

	return api.OrchestratorState{
		Actions:      actions,
		IsDone:       c.done,
		Output:       c.output,
		Failure:      c.failure,
		CustomStatus: c.customStatus,
	}
}

func (c *Context) nextCompletionOrder() int {
	c.completionOrder++
	return c.completionOrder
}

// scheduleAction assigns the next sequence number to the action and
// registers a task for its completion. Task creation is the only thing that
// advances the sequence counter.
func (c *Context) scheduleAction(a api.Action) *completableTask {
	c.seq++
	a.TaskID = c.seq
	c.pendingActions[a.TaskID] = &a

	t := newCompletableTask(c, a.TaskID)
	c.pendingTasks[a.TaskID] = t
	return t
}

func (c *Context) createTimer(fireAt time.Time) *completableTask {
	return c.scheduleAction(api.Action{Type: api.ActionCreateTimer, FireAt: fireAt})
}

// InstanceID returns the id of the orchestration instance being executed.
func (c *Context) InstanceID() string { return c.id }

// Name returns the orchestration name.
func (c *Context) Name() string { return c.name }

// Input returns the input the instance was started with. It is identical
// on every replay.
func (c *Context) Input() any { return c.input }

// CurrentTime returns the orchestration time: the timestamp recorded when
// the current stretch of history began. Use it instead of time.Now, which
// would change between replays.
func (c *Context) CurrentTime() time.Time { return c.currentTime }

// IsReplaying reports whether execution is currently consuming history
// recorded by an earlier activation. Useful to suppress duplicate logging.
func (c *Context) IsReplaying() bool { return c.replaying }

// SetCustomStatus sets an opaque status value carried on the instance
// record, visible to host-side queries while the instance runs.
func (c *Context) SetCustomStatus(v any) { c.customStatus = v }

// CallActivity schedules the named activity and returns a Task for its
// result.
func (c *Context) CallActivity(name string, input any) Task {
	return c.scheduleAction(api.Action{Type: api.ActionCallActivity, Name: name, Input: input})
}

// CallActivityWithRetry schedules the named activity behind a retry policy.
// Failed attempts are re-issued after a durable backoff timer until the
// policy is exhausted, at which point the task fails with the last error.
func (c *Context) CallActivityWithRetry(name string, input any, policy api.RetryPolicy) Task {
	return newRetryTask(c, policy, func() *completableTask {
		return c.scheduleAction(api.Action{Type: api.ActionCallActivity, Name: name, Input: input})
	})
}

// CreateTimer schedules a durable timer that fires after the given delay,
// measured from the current orchestration time.
func (c *Context) CreateTimer(delay time.Duration) Task {
	return c.createTimer(c.currentTime.Add(delay))
}

// CreateTimerUntil schedules a durable timer that fires at the given time.
func (c *Context) CreateTimerUntil(fireAt time.Time) Task {
	return c.createTimer(fireAt)
}

// WaitForEvent returns a Task that resolves when an external event with the
// given name is raised on this instance. Events that arrived before anyone
// waited are buffered in order; each raised event resolves exactly one
// waiter. Combine with CreateTimer and WhenAny for timeouts.
func (c *Context) WaitForEvent(name string) Task {
	c.seq++
	a := api.Action{Type: api.ActionWaitForEvent, TaskID: c.seq, Name: name}
	c.pendingActions[a.TaskID] = &a

	t := newCompletableTask(c, a.TaskID)
	if buf := c.bufferedEvents[name]; len(buf) > 0 {
		if len(buf) > 1 {
			c.bufferedEvents[name] = buf[1:]
		} else {
			delete(c.bufferedEvents, name)
		}
		t.complete(buf[0])
		return t
	}
	c.pendingEventTasks[name] = append(c.pendingEventTasks[name], t)
	return t
}

// CallSubOrchestrator schedules a child orchestration and returns a Task
// for its final output. The host picks the child instance id.
func (c *Context) CallSubOrchestrator(name string, input any) Task {
	return c.scheduleAction(api.Action{Type: api.ActionCallSubOrchestrator, Name: name, Input: input})
}

// CallSubOrchestratorWithID is CallSubOrchestrator with an explicit child
// instance id.
func (c *Context) CallSubOrchestratorWithID(name string, input any, instanceID string) Task {
	return c.scheduleAction(api.Action{
		Type:       api.ActionCallSubOrchestrator,
		Name:       name,
		Input:      input,
		InstanceID: instanceID,
	})
}

// CallSubOrchestratorWithRetry schedules a child orchestration behind a
// retry policy, re-issuing it on failure like CallActivityWithRetry.
func (c *Context) CallSubOrchestratorWithRetry(name string, input any, policy api.RetryPolicy) Task {
	return newRetryTask(c, policy, func() *completableTask {
		return c.scheduleAction(api.Action{Type: api.ActionCallSubOrchestrator, Name: name, Input: input})
	})
}

// SendEntitySignal schedules a fire-and-forget operation for an entity.
// There is no Task: signals have no reply.
func (c *Context) SendEntitySignal(entityID, operation string, input any) {
	c.seq++
	a := api.Action{
		Type:     api.ActionSendEntitySignal,
		TaskID:   c.seq,
		EntityID: entityID,
		Name:     operation,
		Input:    input,
	}
	c.pendingActions[a.TaskID] = &a
}

// WhenAll returns a Task that resolves once every child has resolved. Its
// value is a []any of child results in argument order. If any child failed,
// WhenAll fails with the error of the child that failed first, but only
// after all children have resolved, so later scheduling keeps its replay
// position.
func (c *Context) WhenAll(tasks ...Task) Task {
	children := make([]task, len(tasks))
	for i, t := range tasks {
		children[i] = t.(task)
	}
	return &whenAllTask{ctx: c, children: children}
}

// WhenAny returns a Task that resolves as soon as one child resolves. Its
// value is the winning child Task; compare it against the originals, then
// Await it for the result. Requires at least one child.
func (c *Context) WhenAny(tasks ...Task) Task {
	if len(tasks) == 0 {
		t := newCompletableTask(c, 0)
		t.fail(&api.FailureDetails{Kind: api.FailureLogic, Message: "WhenAny requires at least one task"})
		return t
	}
	children := make([]task, len(tasks))
	for i, t := range tasks {
		children[i] = t.(task)
	}
	return &whenAnyTask{ctx: c, children: children}
}
