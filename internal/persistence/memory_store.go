package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/duro/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// InstanceStore, HistoryStore and EntityStore backed by maps.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*api.OrchestrationInstance
	history   map[string][]api.HistoryEvent
	entities  map[string]*api.EntityInstance
	leases    map[string]lease
}

type lease struct {
	owner   string
	expires time.Time
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*api.OrchestrationInstance),
		history:   make(map[string][]api.HistoryEvent),
		entities:  make(map[string]*api.EntityInstance),
		leases:    make(map[string]lease),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ InstanceStore = (*InMemoryStore)(nil)

var _ HistoryStore = (*InMemoryStore)(nil)

var _ EntityStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveInstance(inst *api.OrchestrationInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return ErrInstanceExists
	}

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.OrchestrationInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}

	cp := *inst
	return &cp, nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.OrchestrationInstance

	for _, inst := range s.instances {
		if filter.Name != "" && inst.Name != filter.Name {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		cp := *inst
		result = append(result, &cp)
	}

	return result, nil
}

func (s *InMemoryStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cur, ok := s.leases[instanceID]
	if ok && cur.owner != owner && cur.expires.After(now) {
		return false, nil
	}
	s.leases[instanceID] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[instanceID]
	if !ok || cur.owner != owner {
		return ErrLeaseNotHeld
	}
	s.leases[instanceID] = lease{owner: owner, expires: time.Now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[instanceID]
	if ok && cur.owner == owner {
		delete(s.leases, instanceID)
	}
	return nil
}

func (s *InMemoryStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.history[instanceID]
	next := int64(len(log)) + 1
	for i := range events {
		events[i].Seq = next
		if events[i].At.IsZero() {
			events[i].At = time.Now()
		}
		next++
		log = append(log, events[i])
	}
	s.history[instanceID] = log
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.history[instanceID]
	out := make([]api.HistoryEvent, len(log))
	copy(out, log)
	return out, nil
}

func (s *InMemoryStore) SaveEntity(ent *api.EntityInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ent
	s.entities[ent.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetEntity(id string) (*api.EntityInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entities[id]
	if !ok {
		return nil, ErrEntityNotFound
	}

	cp := *ent
	return &cp, nil
}
