package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/duro/pkg/api"
)

var (
	// ErrInstanceNotFound is returned when an orchestration instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceExists is returned by SaveInstance when the id is taken.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrEntityNotFound is returned when an entity has no durable record.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrLeaseNotHeld is returned when renewing a lease the caller does not own.
	ErrLeaseNotHeld = errors.New("lease not held")
)

// InstanceFilter selects instances from the store.
// Empty string / zero status mean "no filter" for that field.
type InstanceFilter struct {
	Name   string
	Status api.Status
}

// InstanceStore handles storage of orchestration instance records and the
// per-instance activation lease. The lease serializes activations: a worker
// must hold it for the whole activation, so two workers never run the same
// instance concurrently.
type InstanceStore interface {
	SaveInstance(inst *api.OrchestrationInstance) error
	UpdateInstance(inst *api.OrchestrationInstance) error
	GetInstance(id string) (*api.OrchestrationInstance, error)
	ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error)

	// TryAcquireLease attempts to acquire (or re-acquire) a lease on an
	// instance. If the instance is currently leased by another owner and the
	// lease has not expired, it returns acquired=false, err=nil.
	//
	// Implementations treat a lease owned by the same owner as re-entrant.
	TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (acquired bool, err error)
	// RenewLease extends an existing lease owned by 'owner' for the given ttl.
	RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error
	// ReleaseLease releases a lease if it is owned by 'owner'. It is idempotent.
	ReleaseLease(ctx context.Context, instanceID, owner string) error
}

// HistoryStore is the append-only history log, one ordered stream per
// instance. AppendEvents assigns each event its Seq (strictly increasing
// within the instance, starting at 1) in place before persisting it.
//
// Appends for one instance are serialized by the activation lease, so
// implementations need no own cross-append coordination.
type HistoryStore interface {
	AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error
	ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error)
}

// EntityStore handles storage of entity records. A deleted entity keeps its
// record with Tombstone set, so "deleted" stays distinguishable from "never
// existed".
type EntityStore interface {
	SaveEntity(ent *api.EntityInstance) error
	GetEntity(id string) (*api.EntityInstance, error)
}
