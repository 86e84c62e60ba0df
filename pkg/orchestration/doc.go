// Package orchestration implements the replay execution engine: it drives a
// user orchestrator function forward against an instance's recorded history
// and emits the actions the host still needs to schedule.
//
// User code is ordinary sequential Go. Every side effect goes through the
// Context (CallActivity, CreateTimer, WaitForEvent, ...), which returns a
// Task. Awaiting a Task whose outcome is already in history resolves
// immediately; awaiting one that is not suspends the activation. Because the
// function is re-run from the start on every activation, orchestrator code
// must be deterministic: no wall-clock reads, random values, or I/O outside
// of activities. The engine cannot detect such defects directly; their
// symptom is a replay that diverges from history, which is reported as a
// non-determinism failure.
//
// A single activation never runs user logic on more than one goroutine.
// Suspension happens only inside Await.
package orchestration
