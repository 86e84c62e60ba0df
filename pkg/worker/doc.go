// Package worker provides the background processing loop that drives
// orchestrations forward.
//
// A worker pulls items from a task queue and hands each one to a processor,
// typically the orchestration engine. Items are activations of orchestration
// instances, activity invocations, due timers, and entity operation batches.
// The worker itself knows nothing about their semantics; it owns only the
// dequeue loop, concurrency, and poison-item handling.
//
// # Poison items
//
// An item whose processing returns an error is re-enqueued with a delay and
// an incremented attempt counter. After MaxAttempts the item is dropped and
// the error logged, so one malformed item cannot wedge the queue. This is
// host-level retry and is unrelated to activity retry policies, which are
// expressed in orchestration code and survive replay.
//
// # Scaling
//
// Multiple workers, and multiple goroutines within one worker, can safely
// consume the same queue; the queue hands each item to exactly one consumer.
// With a durable queue backend, workers in separate processes share the load
// the same way.
package worker
