package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/petrijr/duro/pkg/api"
	"github.com/petrijr/duro/pkg/entity"
	"github.com/petrijr/duro/pkg/orchestration"
)

func TestEngine_SubOrchestrationCompletes(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddActivity("decorate", func(ctx context.Context, input any) (any, error) {
		return input.(string) + "!", nil
	})
	reg.MustAddOrchestrator("child", func(ctx *orchestration.Context) (any, error) {
		return ctx.CallActivity("decorate", ctx.Input()).Await()
	})
	reg.MustAddOrchestrator("parent", func(ctx *orchestration.Context) (any, error) {
		return ctx.CallSubOrchestrator("child", "hi").Await()
	})

	e := NewInMemoryEngine(reg, entity.NewRegistry())

	id, err := e.StartOrchestration(context.Background(), "parent", nil)
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}
	drain(t, e)

	inst := waitForStatus(t, e, id, api.StatusCompleted)
	if inst.Output != "hi!" {
		t.Fatalf("unexpected output: %v", inst.Output)
	}

	// The child ran as its own instance, linked back to the parent.
	children, err := e.ListInstances(context.Background(), api.InstanceListOptions{Name: "child"})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child instance, got %d", len(children))
	}
	if children[0].ParentID != id || children[0].ParentTaskID != 1 {
		t.Fatalf("unexpected parent linkage: %+v", children[0])
	}
	if children[0].Status != api.StatusCompleted {
		t.Fatalf("expected child completed, got %s", children[0].Status)
	}
}

func TestEngine_SubOrchestrationExplicitID(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddOrchestrator("child", func(ctx *orchestration.Context) (any, error) {
		return ctx.InstanceID(), nil
	})
	reg.MustAddOrchestrator("parent", func(ctx *orchestration.Context) (any, error) {
		return ctx.CallSubOrchestratorWithID("child", nil, "chosen-id").Await()
	})

	e := NewInMemoryEngine(reg, entity.NewRegistry())

	id, err := e.StartOrchestration(context.Background(), "parent", nil)
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}
	drain(t, e)

	inst := waitForStatus(t, e, id, api.StatusCompleted)
	if inst.Output != "chosen-id" {
		t.Fatalf("unexpected output: %v", inst.Output)
	}
	if _, err := e.GetInstance(context.Background(), "chosen-id"); err != nil {
		t.Fatalf("child with explicit id not found: %v", err)
	}
}

func TestEngine_SubOrchestrationFailurePropagates(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddOrchestrator("child", func(ctx *orchestration.Context) (any, error) {
		return nil, errors.New("child broke")
	})
	reg.MustAddOrchestrator("parent", func(ctx *orchestration.Context) (any, error) {
		return ctx.CallSubOrchestrator("child", nil).Await()
	})

	e := NewInMemoryEngine(reg, entity.NewRegistry())

	id, err := e.StartOrchestration(context.Background(), "parent", nil)
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}
	drain(t, e)

	inst := waitForStatus(t, e, id, api.StatusFailed)
	if inst.Failure == nil || inst.Failure.Kind != api.FailureLogic {
		t.Fatalf("expected propagated child failure, got %+v", inst.Failure)
	}
}

func TestEngine_SubOrchestrationFailureIsCatchable(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddOrchestrator("child", func(ctx *orchestration.Context) (any, error) {
		return nil, errors.New("child broke")
	})
	reg.MustAddOrchestrator("parent", func(ctx *orchestration.Context) (any, error) {
		if _, err := ctx.CallSubOrchestrator("child", nil).Await(); err != nil {
			return "handled", nil
		}
		return nil, errors.New("child unexpectedly succeeded")
	})

	e := NewInMemoryEngine(reg, entity.NewRegistry())

	id, err := e.StartOrchestration(context.Background(), "parent", nil)
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}
	drain(t, e)

	inst := waitForStatus(t, e, id, api.StatusCompleted)
	if inst.Output != "handled" {
		t.Fatalf("unexpected output: %v", inst.Output)
	}
}

func TestEngine_UnregisteredSubOrchestrationFailsTask(t *testing.T) {
	reg := orchestration.NewRegistry()
	reg.MustAddOrchestrator("parent", func(ctx *orchestration.Context) (any, error) {
		return ctx.CallSubOrchestrator("missing", nil).Await()
	})

	e := NewInMemoryEngine(reg, entity.NewRegistry())

	id, err := e.StartOrchestration(context.Background(), "parent", nil)
	if err != nil {
		t.Fatalf("StartOrchestration: %v", err)
	}
	drain(t, e)

	inst := waitForStatus(t, e, id, api.StatusFailed)
	if inst.Failure == nil || inst.Failure.Kind != api.FailureLogic {
		t.Fatalf("expected logic failure for missing child, got %+v", inst.Failure)
	}
}
