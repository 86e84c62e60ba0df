package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/duro/pkg/api"
	"github.com/petrijr/duro/pkg/entity"
	"github.com/petrijr/duro/pkg/orchestration"
)

func newSQLiteTestEngine(t *testing.T, reg *orchestration.Registry, ents *entity.Registry) *Engine {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e, err := NewSQLiteEngine(db, reg, ents)
	if err != nil {
		t.Fatalf("NewSQLiteEngine: %v", err)
	}
	return e
}

func TestEngine_SQLiteActivityChain(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddActivity("greet", func(ctx context.Context, input any) (any, error) {
		return "hello " + input.(string), nil
	})
	reg.MustAddOrchestrator("greeting", func(ctx *orchestration.Context) (any, error) {
		return ctx.CallActivity("greet", ctx.Input()).Await()
	})

	e := newSQLiteTestEngine(t, reg, entity.NewRegistry())
	ctx := context.Background()

	id, err := e.StartOrchestration(ctx, "greeting", "sqlite")
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}
	drain(t, e)

	inst := waitForStatus(t, e, id, api.StatusCompleted)
	if inst.Output != "hello sqlite" {
		t.Fatalf("unexpected output: %v", inst.Output)
	}

	events, err := e.GetHistory(ctx, id)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("expected persisted history, got %d events", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Fatalf("history not contiguous at %d: seq %d", i, ev.Seq)
		}
	}
}

func TestEngine_SQLiteTimerAndEvent(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddOrchestrator("gate", func(ctx *orchestration.Context) (any, error) {
		timeout := ctx.CreateTimer(2 * time.Second)
		approval := ctx.WaitForEvent("approve")
		winner, err := ctx.WhenAny(timeout, approval).Await()
		if err != nil {
			return nil, err
		}
		if winner == approval {
			v, err := approval.Await()
			if err != nil {
				return nil, err
			}
			return v, nil
		}
		return "timed-out", nil
	})

	e := newSQLiteTestEngine(t, reg, entity.NewRegistry())
	stop := startPump(t, e)
	defer stop()

	ctx := context.Background()

	id, err := e.StartOrchestration(ctx, "gate", nil)
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}

	waitForStatus(t, e, id, api.StatusRunning)
	if err := e.RaiseEvent(ctx, id, "approve", "yes"); err != nil {
		t.Fatalf("RaiseEvent: %v", err)
	}

	inst := waitForStatus(t, e, id, api.StatusCompleted)
	if inst.Output != "yes" {
		t.Fatalf("unexpected output: %v", inst.Output)
	}
}

func TestEngine_SQLiteEntityState(t *testing.T) {
	e := newSQLiteTestEngine(t, orchestration.NewRegistry(), newCounterRegistry(t))
	ctx := context.Background()

	for _, n := range []int{2, 3} {
		if err := e.SignalEntity(ctx, "counter@a", "add", n); err != nil {
			t.Fatalf("SignalEntity: %v", err)
		}
	}
	drain(t, e)

	ent, err := e.GetEntity(ctx, "counter@a")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if ent.State != 5 {
		t.Fatalf("expected state 5, got %v", ent.State)
	}
}
