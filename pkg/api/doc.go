// Package api defines the shared data model of the duro engine: actions,
// history events, orchestrator and entity state records, retry policies,
// failure classification, and the host-facing Engine interface.
//
// Everything here is plain data. Action values describe work for the host to
// schedule; HistoryEvent values record what already happened; the
// OrchestratorState and EntityState records are the serialized outcome one
// activation hands back to the host. The replay engine itself lives in
// package orchestration, the entity batch processor in package entity.
package api
