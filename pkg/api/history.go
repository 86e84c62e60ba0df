package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(HistoryEvent{})
}

// EventType identifies an orchestration history event.
type EventType string

const (
	// EventOrchestratorStarted marks the beginning of an activation and
	// carries the orchestration time observed by user logic. The first one
	// in an instance's history triggers the orchestrator function; later
	// ones only advance the clock.
	EventOrchestratorStarted EventType = "orchestrator-started"

	EventTaskScheduled EventType = "task-scheduled"
	EventTaskCompleted EventType = "task-completed"
	EventTaskFailed    EventType = "task-failed"
	EventTimerFired    EventType = "timer-fired"
	EventEventRaised   EventType = "event-raised"

	EventSubOrchestrationCompleted EventType = "sub-orchestration-completed"
	EventSubOrchestrationFailed    EventType = "sub-orchestration-failed"
)

// HistoryEvent is one entry in an instance's append-only history log.
// The engine consumes history strictly in Seq order and never mutates it.
type HistoryEvent struct {
	// Seq is assigned by the history store on append and is strictly
	// increasing within one instance. It orders events; task correlation
	// uses TaskID, not Seq.
	Seq int64
	At  time.Time

	Type EventType

	// TaskID correlates completions back to the scheduled action with the
	// same sequence number.
	TaskID int64

	// Name is the event name for event-raised entries.
	Name string

	// Action is set for task-scheduled entries and records exactly what a
	// previous activation scheduled at this task id. Replays validate their
	// own actions against it.
	Action *Action

	Result  any
	Failure *FailureDetails
}
