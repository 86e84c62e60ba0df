package persistence

import (
	"context"
	"testing"

	"github.com/petrijr/duro/pkg/api"
)

func TestInMemoryStore_SaveUpdateAndGetInstance(t *testing.T) {
	store := NewInMemoryStore()

	inst := &api.OrchestrationInstance{
		ID:     "i-1",
		Name:   "order-flow",
		Status: api.StatusRunning,
	}

	if err := store.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance failed: %v", err)
	}

	// Update status and output.
	inst.Status = api.StatusCompleted
	inst.Output = "result"
	inst.ConsumedSeq = 5

	if err := store.UpdateInstance(inst); err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}

	got, err := store.GetInstance("i-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}

	if got.ID != "i-1" {
		t.Fatalf("expected ID i-1, got %q", got.ID)
	}
	if got.Status != api.StatusCompleted {
		t.Fatalf("expected status COMPLETED, got %q", got.Status)
	}
	if got.Output != "result" {
		t.Fatalf("unexpected output: %v", got.Output)
	}
	if got.ConsumedSeq != 5 {
		t.Fatalf("expected ConsumedSeq 5, got %d", got.ConsumedSeq)
	}
}

func TestInMemoryStore_SaveInstanceRejectsDuplicateID(t *testing.T) {
	store := NewInMemoryStore()

	first := &api.OrchestrationInstance{ID: "i-1", Name: "order-flow", Status: api.StatusRunning}
	if err := store.SaveInstance(first); err != nil {
		t.Fatalf("SaveInstance failed: %v", err)
	}

	dup := &api.OrchestrationInstance{ID: "i-1", Name: "other-flow", Status: api.StatusPending}
	if err := store.SaveInstance(dup); err != ErrInstanceExists {
		t.Fatalf("expected ErrInstanceExists, got %v", err)
	}

	got, err := store.GetInstance("i-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Name != "order-flow" {
		t.Fatalf("duplicate save clobbered the record: %+v", got)
	}
}

func TestInMemoryStore_GetInstanceNotFound(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.GetInstance("does-not-exist")
	if err == nil {
		t.Fatalf("expected error for missing instance")
	}
	if err != ErrInstanceNotFound {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestInMemoryStore_UpdateMissingInstance(t *testing.T) {
	store := NewInMemoryStore()

	err := store.UpdateInstance(&api.OrchestrationInstance{ID: "nope"})
	if err != ErrInstanceNotFound {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestInMemoryStore_ListInstancesFilters(t *testing.T) {
	store := NewInMemoryStore()

	seed := []*api.OrchestrationInstance{
		{ID: "a", Name: "order-flow", Status: api.StatusRunning},
		{ID: "b", Name: "order-flow", Status: api.StatusCompleted},
		{ID: "c", Name: "billing", Status: api.StatusRunning},
	}
	for _, inst := range seed {
		if err := store.SaveInstance(inst); err != nil {
			t.Fatalf("SaveInstance %s: %v", inst.ID, err)
		}
	}

	all, err := store.ListInstances(InstanceFilter{})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(all))
	}

	byName, err := store.ListInstances(InstanceFilter{Name: "order-flow"})
	if err != nil {
		t.Fatalf("ListInstances by name: %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("expected 2 order-flow instances, got %d", len(byName))
	}

	byBoth, err := store.ListInstances(InstanceFilter{Name: "order-flow", Status: api.StatusRunning})
	if err != nil {
		t.Fatalf("ListInstances by name+status: %v", err)
	}
	if len(byBoth) != 1 || byBoth[0].ID != "a" {
		t.Fatalf("unexpected filtered result: %+v", byBoth)
	}
}

func TestInMemoryStore_AppendAssignsSeq(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := []api.HistoryEvent{
		{Type: api.EventOrchestratorStarted},
		{Type: api.EventTaskScheduled, TaskID: 1},
	}
	if err := store.AppendEvents(ctx, "i-1", first); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if first[0].Seq != 1 || first[1].Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", first[0].Seq, first[1].Seq)
	}

	second := []api.HistoryEvent{{Type: api.EventTaskCompleted, TaskID: 1}}
	if err := store.AppendEvents(ctx, "i-1", second); err != nil {
		t.Fatalf("AppendEvents second batch: %v", err)
	}
	if second[0].Seq != 3 {
		t.Fatalf("expected seq 3, got %d", second[0].Seq)
	}

	events, err := store.ListEvents(ctx, "i-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
		if ev.At.IsZero() {
			t.Fatalf("event %d has zero timestamp", i)
		}
	}
}

func TestInMemoryStore_HistoryIsPerInstance(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.AppendEvents(ctx, "i-1", []api.HistoryEvent{{Type: api.EventOrchestratorStarted}}); err != nil {
		t.Fatalf("AppendEvents i-1: %v", err)
	}

	events, err := store.ListEvents(ctx, "i-2")
	if err != nil {
		t.Fatalf("ListEvents i-2: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty history for i-2, got %d events", len(events))
	}
}

func TestInMemoryStore_EntitySaveGetAndTombstone(t *testing.T) {
	store := NewInMemoryStore()

	if _, err := store.GetEntity("counter@a"); err != ErrEntityNotFound {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}

	ent := &api.EntityInstance{ID: "counter@a", State: 41}
	if err := store.SaveEntity(ent); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	got, err := store.GetEntity("counter@a")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.State != 41 || got.Tombstone {
		t.Fatalf("unexpected entity: %+v", got)
	}

	// Deleting keeps the record with the tombstone set.
	ent.State = nil
	ent.Tombstone = true
	if err := store.SaveEntity(ent); err != nil {
		t.Fatalf("SaveEntity tombstone: %v", err)
	}

	got, err = store.GetEntity("counter@a")
	if err != nil {
		t.Fatalf("GetEntity after delete: %v", err)
	}
	if got.State != nil || !got.Tombstone {
		t.Fatalf("expected tombstone record, got %+v", got)
	}
}
