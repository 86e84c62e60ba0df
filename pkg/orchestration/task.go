package orchestration

import (
	"errors"
	"fmt"

	"github.com/petrijr/duro/pkg/api"
)

// errTaskBlocked unwinds an activation when user logic awaits a result that
// history does not hold yet. It is recovered by Context.run; reaching user
// code only happens if the user installs their own recover, which breaks
// the suspension protocol and is unsupported.
var errTaskBlocked = errors.New("orchestration blocked on pending work")

// fatalError carries an engine-level failure (such as detected
// non-determinism) out of the history pump when user code is on the stack.
type fatalError struct {
	err error
}

// Task is the deferred result of one Action or a composition of child
// tasks. Tasks never perform I/O; their outcomes come exclusively from
// history events.
type Task interface {
	// Await returns the task's result once it has resolved. If the outcome
	// is already recorded in history, Await returns synchronously;
	// otherwise the activation suspends and Await returns only in a later
	// activation, after the completion has been delivered.
	//
	// A failed task surfaces as *api.TaskFailedError, at this exact call
	// site, identically on first execution and on replay.
	Await() (any, error)
}

// task is the uniform internal capability every task variant implements:
// poll advances the task as far as already-consumed history allows and
// reports whether it has resolved; outcome is valid once poll returned true.
type task interface {
	Task
	poll() bool
	outcome() (value any, failure *api.FailureDetails, order int)
	taskID() int64
}

func awaitTask(c *Context, t task) (any, error) {
	for !t.poll() {
		c.pump()
	}
	v, f, _ := t.outcome()
	if f != nil {
		return nil, &api.TaskFailedError{TaskID: t.taskID(), Details: *f}
	}
	return v, nil
}

// completableTask pairs one scheduled Action with its completion
// bookkeeping. It is the atomic task all compositions bottom out in.
type completableTask struct {
	ctx *Context
	id  int64

	completed bool
	result    any
	failure   *api.FailureDetails
	order     int
}

func newCompletableTask(c *Context, id int64) *completableTask {
	return &completableTask{ctx: c, id: id}
}

func (t *completableTask) Await() (any, error) { return awaitTask(t.ctx, t) }

func (t *completableTask) poll() bool { return t.completed }

func (t *completableTask) outcome() (any, *api.FailureDetails, int) {
	return t.result, t.failure, t.order
}

func (t *completableTask) taskID() int64 { return t.id }

func (t *completableTask) complete(v any) {
	if t.completed {
		return
	}
	t.completed = true
	t.result = v
	t.order = t.ctx.nextCompletionOrder()
}

func (t *completableTask) fail(f *api.FailureDetails) {
	if t.completed {
		return
	}
	t.completed = true
	t.failure = f
	t.order = t.ctx.nextCompletionOrder()
}

// retryTask wraps re-issues of an underlying action behind a retry policy.
// Each failed attempt schedules a durable timer for the backoff interval and
// then a fresh copy of the original action, so the attempt counter is
// carried implicitly by the sequence-numbered history and replays exactly.
type retryTask struct {
	ctx     *Context
	policy  api.RetryPolicy
	reissue func() *completableTask

	cur     *completableTask // current attempt
	gate    *completableTask // backoff timer, non-nil while waiting
	attempt int
	firstAt int64 // unix nanos of orchestration time at the first attempt

	completed bool
	result    any
	failure   *api.FailureDetails
	order     int
}

func newRetryTask(c *Context, policy api.RetryPolicy, reissue func() *completableTask) *retryTask {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &retryTask{
		ctx:     c,
		policy:  policy,
		reissue: reissue,
		cur:     reissue(),
		attempt: 1,
		firstAt: c.currentTime.UnixNano(),
	}
}

func (t *retryTask) Await() (any, error) { return awaitTask(t.ctx, t) }

func (t *retryTask) poll() bool {
	for !t.completed {
		if t.gate != nil {
			if !t.gate.completed {
				return false
			}
			t.gate = nil
			t.cur = t.reissue()
			t.attempt++
			continue
		}

		if !t.cur.completed {
			return false
		}
		if t.cur.failure == nil {
			t.resolve(t.cur.result, nil)
			break
		}

		last := t.cur.failure
		if t.attempt >= t.policy.MaxAttempts {
			t.resolve(nil, t.exhausted(last))
			break
		}
		if t.policy.RetryTimeout > 0 &&
			t.ctx.currentTime.UnixNano()-t.firstAt >= int64(t.policy.RetryTimeout) {
			t.resolve(nil, t.exhausted(last))
			break
		}

		// Gate the next attempt behind a durable timer; wall-clock sleeps
		// would not survive replay.
		delay := t.policy.NextRetryInterval(t.attempt)
		t.gate = t.ctx.createTimer(t.ctx.currentTime.Add(delay))
	}
	return true
}

func (t *retryTask) exhausted(last *api.FailureDetails) *api.FailureDetails {
	return &api.FailureDetails{
		Kind:    api.FailureRetryExhausted,
		Message: fmt.Sprintf("retry policy exhausted after %d attempts: %s", t.attempt, last.Message),
	}
}

func (t *retryTask) resolve(v any, f *api.FailureDetails) {
	t.completed = true
	t.result = v
	t.failure = f
	t.order = t.cur.order
}

func (t *retryTask) outcome() (any, *api.FailureDetails, int) {
	return t.result, t.failure, t.order
}

func (t *retryTask) taskID() int64 { return t.cur.id }

// whenAllTask resolves once every child has resolved. It fails with the
// failure of the child that failed first in completion order, but still
// waits for all children, so the actions any surviving child schedules
// afterwards keep their replay positions.
type whenAllTask struct {
	ctx      *Context
	children []task

	completed bool
	results   []any
	failure   *api.FailureDetails
	failedID  int64
	order     int
}

func (t *whenAllTask) Await() (any, error) {
	if len(t.children) == 0 {
		return []any{}, nil
	}
	return awaitTask(t.ctx, t)
}

func (t *whenAllTask) poll() bool {
	if t.completed {
		return true
	}

	all := true
	for _, ch := range t.children {
		// Poll every child each round so retry wrappers keep advancing
		// while siblings are still pending.
		if !ch.poll() {
			all = false
		}
	}
	if !all {
		return false
	}

	t.results = make([]any, len(t.children))
	bestOrder := -1
	for i, ch := range t.children {
		v, f, order := ch.outcome()
		if f != nil && (bestOrder == -1 || order < bestOrder) {
			bestOrder = order
			t.failure = f
			t.failedID = ch.taskID()
		}
		t.results[i] = v
	}
	t.completed = true
	t.order = t.ctx.nextCompletionOrder()
	return true
}

func (t *whenAllTask) outcome() (any, *api.FailureDetails, int) {
	if t.failure != nil {
		return nil, t.failure, t.order
	}
	return t.results, t.failure, t.order
}

func (t *whenAllTask) taskID() int64 { return t.failedID }

// whenAnyTask resolves as soon as one child has resolved; its value is the
// winning child Task, which the caller can compare against the originals
// and then Await without suspending again. Losing children stay pending
// and are simply abandoned if the caller never awaits them.
type whenAnyTask struct {
	ctx      *Context
	children []task

	completed bool
	winner    task
}

func (t *whenAnyTask) Await() (any, error) { return awaitTask(t.ctx, t) }

func (t *whenAnyTask) poll() bool {
	if t.completed {
		return true
	}

	bestOrder := -1
	var winner task
	for _, ch := range t.children {
		if !ch.poll() {
			continue
		}
		_, _, order := ch.outcome()
		if bestOrder == -1 || order < bestOrder {
			bestOrder = order
			winner = ch
		}
	}
	if winner == nil {
		return false
	}
	t.completed = true
	t.winner = winner
	return true
}

func (t *whenAnyTask) outcome() (any, *api.FailureDetails, int) {
	_, _, order := t.winner.outcome()
	return Task(t.winner), nil, order
}

func (t *whenAnyTask) taskID() int64 { return t.winner.taskID() }
