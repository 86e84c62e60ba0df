// Package entity implements the entity operation-batch processor.
//
// An entity is an addressable unit of durable state processed one operation
// at a time. Unlike orchestrations, entities are not replayed: their state
// blob is the checkpoint, and every operation in a delivered batch runs
// exactly once, in delivery order. Handlers mutate state through the
// Context, may queue signals to other entities or start orchestrations
// (collected as outgoing actions, never executed inline), and may return a
// value to request-style callers.
package entity
