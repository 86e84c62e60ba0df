package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(Action{})
	gob.Register(FailureDetails{})
	gob.Register(Operation{})
	gob.Register(OperationResult{})

	// Common payload shapes, so users only register their own structs.
	gob.Register([]any{})
	gob.Register(map[string]any{})
	gob.Register(time.Time{})
}

// ActionType identifies the kind of work an Action asks the host to schedule.
type ActionType string

const (
	ActionCallActivity        ActionType = "call-activity"
	ActionCreateTimer         ActionType = "create-timer"
	ActionWaitForEvent        ActionType = "wait-for-event"
	ActionCallSubOrchestrator ActionType = "call-sub-orchestrator"
	ActionSendEntitySignal    ActionType = "send-entity-signal"
	ActionStartOrchestration  ActionType = "start-orchestration"
)

// Action is a data-only description of one unit of work for the host to
// schedule. Actions are immutable once created and never perform I/O
// themselves; the host executes them and feeds completions back into the
// instance's history.
//
// Only the fields relevant to Type are set. TaskID is the sequence number
// assigned by the execution engine at creation time; the Nth action created
// by an orchestration must be the Nth action in every replay of it.
type Action struct {
	Type   ActionType
	TaskID int64

	// Name is the activity, orchestration, event, or entity operation name,
	// depending on Type.
	Name  string
	Input any

	// FireAt is set for create-timer actions.
	FireAt time.Time

	// InstanceID is set for call-sub-orchestrator and start-orchestration
	// actions when the caller picked an explicit child instance id.
	InstanceID string

	// EntityID is set for send-entity-signal actions.
	EntityID string
}
