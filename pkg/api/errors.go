package api

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an orchestration, task, or entity operation
// failed. Business-logic failures and engine-detected unsafe replays must
// stay distinguishable, so operators can tell "workflow failed" from
// "engine refused to replay".
type FailureKind string

const (
	// FailureActivity marks an action whose execution failed; user logic
	// observes it through the awaiting task and may recover.
	FailureActivity FailureKind = "activity-failed"

	// FailureRetryExhausted marks a retryable task whose policy ran out of
	// attempts or time. Terminal for that task, recoverable by user logic.
	FailureRetryExhausted FailureKind = "retry-exhausted"

	// FailureNonDeterminism marks a mismatch between recorded history and
	// the current replay. Fatal for the instance; never silently recovered.
	FailureNonDeterminism FailureKind = "non-determinism"

	// FailureLogic marks an uncaught error from orchestrator or entity
	// user code.
	FailureLogic FailureKind = "logic-error"
)

// FailureDetails is the serializable description of a failure. It travels
// through history events and instance records instead of Go error values.
type FailureDetails struct {
	Kind    FailureKind
	Message string
}

func (f FailureDetails) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// TaskFailedError is returned by Task.Await when the awaited task resolved
// as failed. It surfaces identically on first execution and on replay, at
// the exact suspension point that awaited the task.
type TaskFailedError struct {
	TaskID  int64
	Details FailureDetails
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %d failed: %s", e.TaskID, e.Details.Error())
}

// NonDeterminismError reports that the current replay diverged from
// recorded history: a different action kind, name, or sequence number was
// produced at a point where history already holds a record.
type NonDeterminismError struct {
	TaskID int64
	Reason string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic orchestration detected at task %d: %s", e.TaskID, e.Reason)
}

// IsNonDeterminism reports whether err (or anything it wraps) is a
// NonDeterminismError.
func IsNonDeterminism(err error) bool {
	var nd *NonDeterminismError
	return errors.As(err, &nd)
}

// FailureFromError converts an error escaping user code into failure
// details, preserving the original kind when the error already carries one.
func FailureFromError(err error) *FailureDetails {
	var tf *TaskFailedError
	if errors.As(err, &tf) {
		d := tf.Details
		return &d
	}
	var nd *NonDeterminismError
	if errors.As(err, &nd) {
		return &FailureDetails{Kind: FailureNonDeterminism, Message: nd.Error()}
	}
	return &FailureDetails{Kind: FailureLogic, Message: err.Error()}
}
