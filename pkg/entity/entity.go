package entity

import (
	"fmt"
	"sync"

	"github.com/petrijr/duro/pkg/api"
)

// Handler is user entity logic for one operation. The returned value is the
// reply for request-style operations and is ignored for signals.
type Handler func(ctx *Context) (any, error)

// Registry maps entity names to handlers. The entity name is the part of
// the entity id before "@" (as in "counter@user-42"); ids without "@" use
// the whole id as the name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Add(name string, fn Handler) error {
	if name == "" {
		return fmt.Errorf("entity name is required")
	}
	if fn == nil {
		return fmt.Errorf("entity %q: handler is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("entity %q already registered", name)
	}
	r.handlers[name] = fn
	return nil
}

// MustAdd is Add that panics on error. Intended for registration at
// program startup.
func (r *Registry) MustAdd(name string, fn Handler) {
	if err := r.Add(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Handler(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("entity %q not found", name)
	}
	return fn, nil
}

// Context is what a Handler sees while processing one operation: the
// operation itself, the current state, and collectors for outgoing work.
type Context struct {
	entityID string
	op       api.Operation

	state  any
	exists bool

	deleted bool
	actions []api.Action
}

// EntityID returns the full id of the entity being processed.
func (c *Context) EntityID() string { return c.entityID }

// Operation returns the name of the operation being processed.
func (c *Context) Operation() string { return c.op.Name }

// Input returns the operation's input.
func (c *Context) Input() any { return c.op.Input }

// State returns the current state and whether the entity exists. For an
// entity that was never created or was deleted, exists is false.
func (c *Context) State() (any, bool) { return c.state, c.exists }

// SetState replaces the entity's state. It also revives a deleted entity.
func (c *Context) SetState(v any) {
	c.state = v
	c.exists = true
	c.deleted = false
}

// Delete removes the entity's state, leaving a tombstone so "deleted" stays
// distinguishable from "never existed".
func (c *Context) Delete() {
	c.state = nil
	c.exists = false
	c.deleted = true
}

// SignalEntity queues a fire-and-forget operation for another entity. It is
// delivered by the host after the batch commits, never inline.
func (c *Context) SignalEntity(entityID, operation string, input any) {
	c.actions = append(c.actions, api.Action{
		Type:     api.ActionSendEntitySignal,
		EntityID: entityID,
		Name:     operation,
		Input:    input,
	})
}

// StartOrchestration queues the start of a new orchestration instance with
// the given id; an empty id lets the host pick one.
func (c *Context) StartOrchestration(name string, input any, instanceID string) {
	c.actions = append(c.actions, api.Action{
		Type:       api.ActionStartOrchestration,
		Name:       name,
		Input:      input,
		InstanceID: instanceID,
	})
}
