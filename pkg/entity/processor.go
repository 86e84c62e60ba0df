package entity

import (
	"fmt"
	"strings"

	"github.com/petrijr/duro/pkg/api"
)

// Process applies a batch of operations to an entity, strictly in delivery
// order, each exactly once. This is not replay: the state blob passed in is
// the durable checkpoint, and the returned EntityState replaces it.
//
// The caller guarantees serialized delivery: at most one batch per entity is
// in flight, and any cross-entity locks were granted before entry.
//
// An operation whose handler returns an error leaves the state as it was
// before that operation; the error is recorded in the operation's result
// (when it has one) and the rest of the batch still runs.
func Process(reg *Registry, entityID string, current api.EntityInstance, batch []api.Operation) api.EntityState {
	name := entityName(entityID)

	st := api.EntityState{
		State:     current.State,
		Tombstone: current.Tombstone,
	}
	exists := current.State != nil && !current.Tombstone

	for _, op := range batch {
		octx := &Context{
			entityID: entityID,
			op:       op,
			state:    st.State,
			exists:   exists,
			deleted:  st.Tombstone,
		}

		value, err := runOperation(reg, name, octx)
		if err != nil {
			// Roll back this operation only: state changes and queued
			// actions from the failed handler are discarded.
			if op.RequestID != "" {
				st.Results = append(st.Results, api.OperationResult{
					RequestID: op.RequestID,
					Failure:   &api.FailureDetails{Kind: api.FailureLogic, Message: err.Error()},
				})
			}
			continue
		}

		st.State = octx.state
		st.Tombstone = octx.deleted
		st.Actions = append(st.Actions, octx.actions...)
		exists = octx.exists

		if op.RequestID != "" {
			st.Results = append(st.Results, api.OperationResult{
				RequestID: op.RequestID,
				Value:     value,
			})
		}
	}

	return st
}

func runOperation(reg *Registry, name string, octx *Context) (value any, err error) {
	fn, err := reg.Handler(name)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &api.FailureDetails{
				Kind:    api.FailureLogic,
				Message: fmt.Sprintf("entity handler panic: %v", r),
			}
		}
	}()
	return fn(octx)
}

// entityName extracts the handler name from an entity id of the form
// "name@key". Ids without a key map to themselves.
func entityName(id string) string {
	if i := strings.Index(id, "@"); i > 0 {
		return id[:i]
	}
	return id
}
