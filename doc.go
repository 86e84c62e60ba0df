// Package duro is a lightweight, embeddable durable-execution engine for Go.
//
// Duro runs orchestrations: ordinary Go functions whose progress survives
// process restarts. An orchestration function never runs start to finish in
// one go. Instead it is re-executed (replayed) against its recorded history
// every time new information arrives, and only the parts past the end of
// history actually schedule new work. The function must therefore be
// deterministic; everything non-deterministic lives in activities.
//
// # Core Concepts
//
//  1. Orchestrations: replayed, deterministic coordination code
//  2. Activities: one-shot units of real work (I/O, API calls)
//  3. Entities: addressable durable state, one operation at a time
//  4. Engine: the host that persists history and schedules work
//  5. Worker: the loop that pulls queued work and feeds the engine
//
// # Orchestrations
//
// An orchestration is registered under a name and receives an
// *orchestration.Context:
//
//	reg := duro.NewRegistry()
//	reg.MustAddOrchestrator("order", func(ctx *orchestration.Context) (any, error) {
//	    paid, err := ctx.CallActivity("charge", ctx.Input()).Await()
//	    if err != nil {
//	        return nil, err
//	    }
//	    return ctx.CallActivity("ship", paid).Await()
//	})
//
// Await either returns a result already recorded in history or suspends the
// instance until the result arrives. Timers (ctx.CreateTimer), external
// events (ctx.WaitForEvent), sub-orchestrations and entity signals follow
// the same pattern, and WhenAll / WhenAny compose them.
//
// Orchestration code must be deterministic: use ctx.CurrentTime instead of
// time.Now, and push randomness, I/O and clocks into activities.
//
// # Activities
//
// Activities are plain functions with a context.Context; they may do
// arbitrary I/O and are invoked outside the replay engine. A crashed
// activity is retried by the host, so activities should be idempotent.
// Orchestration-level retry with durable backoff is available via
// CallActivityWithRetry and the Retry builder.
//
// # Entities
//
// Entities hold keyed durable state ("counter@user-42") and process
// operations strictly one at a time, exactly once, without replay. They are
// reachable from orchestrations (SendEntitySignal) and from application code
// (Engine.SignalEntity, Engine.CallEntity).
//
// # Engine and Worker
//
// The Engine persists instance records, histories and entity state, and
// turns each activation's decisions into queued work items. A Worker
// consumes that queue. LocalRunner bundles an in-memory engine with a
// worker for tests and single-process use; NewSQLiteBundle does the same
// with everything persisted in one SQLite database, which survives restarts
// (pair it with Engine.RecoverStuckInstances on startup).
//
// For complete programs, see the /examples directory.
package duro
