package api

import "context"

// Engine is the host-facing API of the in-process orchestration host.
// It owns durable instance/entity state and the scheduling of actions; the
// replay core itself is stateless and invoked once per activation.
type Engine interface {
	// StartOrchestration creates a new instance of a registered
	// orchestration and schedules its first activation. It returns the
	// instance id; it does not wait for the instance to run.
	StartOrchestration(ctx context.Context, name string, input any) (string, error)

	// RaiseEvent appends an external event to a running instance's history
	// and schedules an activation so waiting tasks can observe it.
	RaiseEvent(ctx context.Context, instanceID, name string, payload any) error

	// Terminate force-completes an instance with the given output. Pending
	// work for the instance is dropped when it next surfaces.
	Terminate(ctx context.Context, instanceID string, output any) error

	// GetInstance looks up an orchestration instance by id.
	GetInstance(ctx context.Context, instanceID string) (*OrchestrationInstance, error)

	// ListInstances returns instances matching the given options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*OrchestrationInstance, error)

	// GetHistory returns the full recorded history of an instance, in
	// sequence order. Intended for debugging and tests.
	GetHistory(ctx context.Context, instanceID string) ([]HistoryEvent, error)

	// SignalEntity enqueues a fire-and-forget operation for an entity.
	SignalEntity(ctx context.Context, entityID, operation string, input any) error

	// CallEntity enqueues a request-style operation and waits for its
	// result. The wait is in-process; the operation itself is durable.
	CallEntity(ctx context.Context, entityID, operation string, input any) (any, error)

	// GetEntity returns the durable record of an entity. The error
	// distinguishes "never existed" from a tombstoned entity, which is
	// returned with Tombstone set.
	GetEntity(ctx context.Context, entityID string) (*EntityInstance, error)

	// RecoverStuckInstances re-schedules activations for running instances
	// whose lease has expired, typically after a crash. It returns the
	// number of instances re-enqueued.
	RecoverStuckInstances(ctx context.Context) (int, error)
}
