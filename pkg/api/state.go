package api

// Status represents the lifecycle state of an orchestration instance.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTerminated Status = "TERMINATED"
)

// OrchestratorState is the outcome of one activation of the execution
// engine: the actions scheduled since the last activation plus the
// completion status. It is everything the host needs to persist and
// schedule; the engine itself holds no state between activations.
type OrchestratorState struct {
	// Actions lists newly created actions in creation order. Actions that
	// were already recorded in history are not repeated here.
	Actions []Action

	// IsDone is true when user logic returned (or failed) without further
	// suspension. Output or Failure is set accordingly.
	IsDone  bool
	Output  any
	Failure *FailureDetails

	// CustomStatus is an opaque, user-settable value carried on the
	// instance record.
	CustomStatus any
}

// OrchestrationInstance is the host-side record of one durable execution.
type OrchestrationInstance struct {
	ID     string
	Name   string
	Status Status

	// Input is the original input the instance was started with. Replays
	// always see this exact value.
	Input any

	Output       any
	Failure      *FailureDetails
	CustomStatus any

	// ParentID and ParentTaskID link a sub-orchestration back to the task
	// in its parent that awaits it. Both are zero for root instances.
	ParentID     string
	ParentTaskID int64

	// ConsumedSeq is the history sequence number up to which events have
	// already been consumed by an activation. Events past it are delivered
	// as new events on the next activation.
	ConsumedSeq int64
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// Name, if non-empty, limits results to instances of the given
	// orchestration.
	Name string

	// Status, if non-empty, limits results to instances with the given status.
	Status Status
}

// EntityInstance is the durable record of one entity: an addressable unit
// of state processed one operation at a time, without replay.
//
// Absence of a record means "not yet existing"; Tombstone distinguishes an
// entity that was explicitly deleted from one that never existed.
type EntityInstance struct {
	ID        string
	State     any
	Tombstone bool
}

// Operation is one queued entity operation. Operations carrying a RequestID
// were invoked as a request and produce an OperationResult; operations
// without one are fire-and-forget signals.
type Operation struct {
	Name  string
	Input any

	RequestID string
}

// OperationResult is the reply to a request-style entity operation.
type OperationResult struct {
	RequestID string
	Value     any
	Failure   *FailureDetails
}

// EntityState is the outcome of processing one operation batch: the new
// durable state (or a tombstone), outgoing actions collected along the way,
// and results for request-style operations.
type EntityState struct {
	State     any
	Tombstone bool

	// Actions holds outgoing send-entity-signal and start-orchestration
	// actions, in the order user logic issued them. They are executed by
	// the host, never inline.
	Actions []Action

	Results []OperationResult
}
