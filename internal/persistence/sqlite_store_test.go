package persistence

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/petrijr/duro/pkg/api"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteInstanceStore_SaveUpdateAndGet(t *testing.T) {
	db := openTestDB(t)

	store, err := NewSQLiteInstanceStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteInstanceStore: %v", err)
	}

	inst := &api.OrchestrationInstance{
		ID:     "i-1",
		Name:   "order-flow",
		Status: api.StatusPending,
		Input:  "order-7",
	}
	if err := store.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	inst.Status = api.StatusFailed
	inst.Failure = &api.FailureDetails{Kind: api.FailureActivity, Message: "charge declined"}
	inst.ConsumedSeq = 4
	if err := store.UpdateInstance(inst); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}

	got, err := store.GetInstance("i-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Name != "order-flow" || got.Status != api.StatusFailed {
		t.Fatalf("unexpected instance: %+v", got)
	}
	if got.Input != "order-7" {
		t.Fatalf("unexpected input: %v", got.Input)
	}
	if got.Failure == nil || got.Failure.Kind != api.FailureActivity || got.Failure.Message != "charge declined" {
		t.Fatalf("unexpected failure: %+v", got.Failure)
	}
	if got.ConsumedSeq != 4 {
		t.Fatalf("expected ConsumedSeq 4, got %d", got.ConsumedSeq)
	}
}

func TestSQLiteInstanceStore_SaveInstanceRejectsDuplicateID(t *testing.T) {
	db := openTestDB(t)

	store, err := NewSQLiteInstanceStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteInstanceStore: %v", err)
	}

	inst := &api.OrchestrationInstance{ID: "i-1", Name: "order-flow", Status: api.StatusRunning}
	if err := store.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	dup := &api.OrchestrationInstance{ID: "i-1", Name: "other-flow", Status: api.StatusPending}
	if err := store.SaveInstance(dup); err != ErrInstanceExists {
		t.Fatalf("expected ErrInstanceExists, got %v", err)
	}
}

func TestSQLiteInstanceStore_ParentLinkage(t *testing.T) {
	db := openTestDB(t)

	store, err := NewSQLiteInstanceStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteInstanceStore: %v", err)
	}

	child := &api.OrchestrationInstance{
		ID:           "child-1",
		Name:         "billing",
		Status:       api.StatusPending,
		ParentID:     "parent-1",
		ParentTaskID: 3,
	}
	if err := store.SaveInstance(child); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	got, err := store.GetInstance("child-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.ParentID != "parent-1" || got.ParentTaskID != 3 {
		t.Fatalf("unexpected parent linkage: %+v", got)
	}
}

func TestSQLiteInstanceStore_NotFound(t *testing.T) {
	db := openTestDB(t)

	store, err := NewSQLiteInstanceStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteInstanceStore: %v", err)
	}

	if _, err := store.GetInstance("nope"); err != ErrInstanceNotFound {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
	if err := store.UpdateInstance(&api.OrchestrationInstance{ID: "nope"}); err != ErrInstanceNotFound {
		t.Fatalf("expected ErrInstanceNotFound on update, got %v", err)
	}
}

func TestSQLiteInstanceStore_ListInstancesFilters(t *testing.T) {
	db := openTestDB(t)

	store, err := NewSQLiteInstanceStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteInstanceStore: %v", err)
	}

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

	byName, err := store.ListInstances(InstanceFilter{Name: "order-flow"})
	if err != nil {
		t.Fatalf("ListInstances by name: %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("expected 2 order-flow instances, got %d", len(byName))
	}

	byStatus, err := store.ListInstances(InstanceFilter{Status: api.StatusRunning})
	if err != nil {
		t.Fatalf("ListInstances by status: %v", err)
	}
	if len(byStatus) != 2 {
		t.Fatalf("expected 2 running instances, got %d", len(byStatus))
	}
}

func TestSQLiteEntityStore_SaveGetAndTombstone(t *testing.T) {
	db := openTestDB(t)

	store, err := NewSQLiteEntityStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteEntityStore: %v", err)
	}

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

	// Saving again upserts in place.
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
