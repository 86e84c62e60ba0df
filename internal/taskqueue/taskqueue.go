package taskqueue

import (
	"context"
	"time"
)

// ItemType identifies what the worker should do.
type ItemType string

const (
	// ItemRunOrchestrator activates an orchestration instance: replay its
	// history, deliver new events, schedule whatever the activation emits.
	ItemRunOrchestrator ItemType = "run-orchestrator"

	// ItemRunActivity executes one activity invocation.
	ItemRunActivity ItemType = "run-activity"

	// ItemFireTimer records a timer-fired event once its due time passes.
	// The due time rides on NotBefore.
	ItemFireTimer ItemType = "fire-timer"

	// ItemEntityBatch delivers queued operations to an entity.
	ItemEntityBatch ItemType = "entity-batch"
)

// Item represents a unit of work for the worker.
type Item struct {
	ID   string
	Type ItemType

	// InstanceID is the orchestration instance the item belongs to.
	InstanceID string

	// TaskID is the scheduled task the item settles, for run-activity and
	// fire-timer items.
	TaskID int64

	// Name is the activity name for run-activity items and the operation
	// name for entity-batch items.
	Name string

	// EntityID addresses the target entity for entity-batch items.
	EntityID string

	// RequestID correlates a request-style entity operation back to its
	// caller. Empty for signals.
	RequestID string

	// Payload is item-type specific: the activity input, the entity
	// operation input, or nil.
	Payload any

	EnqueuedAt time.Time

	// NotBefore is the earliest time this item should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time

	// Attempts counts processing attempts so the worker can shed items
	// that keep crashing it.
	Attempts int
}

// Queue is a simple async work queue interface.
type Queue interface {
	// Enqueue adds an item to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, it Item) error

	// Dequeue removes and returns the next eligible item, blocking until one
	// is available or the context is cancelled. Items whose NotBefore lies in
	// the future are not returned before that time.
	Dequeue(ctx context.Context) (*Item, error)

	// Len returns the approximate number of items queued.
	Len() int
}
