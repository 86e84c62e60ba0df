package duro

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/duro/pkg/api"
	"github.com/petrijr/duro/pkg/entity"
	"github.com/petrijr/duro/pkg/orchestration"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine                = api.Engine
	OrchestrationInstance = api.OrchestrationInstance
	EntityInstance        = api.EntityInstance
	InstanceListOptions   = api.InstanceListOptions
	Status                = api.Status
	HistoryEvent          = api.HistoryEvent
	RetryPolicy           = api.RetryPolicy
	FailureDetails        = api.FailureDetails
	TaskFailedError       = api.TaskFailedError
	Observer              = api.Observer
	LoggingObserver       = api.LoggingObserver
	BasicMetrics          = api.BasicMetrics
	BasicMetricsSnapshot  = api.BasicMetricsSnapshot
	CompositeObserver     = api.CompositeObserver
	NoopObserver          = api.NoopObserver

	// Registry holds orchestrator and activity functions; EntityRegistry
	// holds entity handlers.
	Registry       = orchestration.Registry
	EntityRegistry = entity.Registry

	// OrchestrationContext is the context orchestrator functions receive;
	// EntityContext is the context entity handlers receive.
	OrchestrationContext = orchestration.Context
	EntityContext        = entity.Context

	// Task is the deferred result of scheduled orchestration work.
	Task = orchestration.Task
)

// Re-export common constructors.

var (
	NewRegistry          = orchestration.NewRegistry
	NewEntityRegistry    = entity.NewRegistry
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending    = api.StatusPending
	StatusRunning    = api.StatusRunning
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
	StatusTerminated = api.StatusTerminated
)

// Convenience helpers that forward to the underlying Engine.

// StartOrchestration starts a new instance of a registered orchestration and
// returns its id without waiting for it to run.
func StartOrchestration(ctx context.Context, eng Engine, name string, input any) (string, error) {
	return eng.StartOrchestration(ctx, name, input)
}

// RaiseEvent delivers an external event to a running instance.
func RaiseEvent(ctx context.Context, eng Engine, instanceID, name string, payload any) error {
	return eng.RaiseEvent(ctx, instanceID, name, payload)
}

// Terminate force-completes an instance with the given output.
func Terminate(ctx context.Context, eng Engine, instanceID string, output any) error {
	return eng.Terminate(ctx, instanceID, output)
}

// GetInstance fetches an instance by id.
func GetInstance(ctx context.Context, eng Engine, instanceID string) (*OrchestrationInstance, error) {
	return eng.GetInstance(ctx, instanceID)
}

// ListInstances lists orchestration instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) ([]*OrchestrationInstance, error) {
	return eng.ListInstances(ctx, opts)
}

// RecoverStuckInstances re-schedules activations for instances whose lease
// expired, typically after a crash.
//
// It is typically called on process startup, before starting any workers:
//
//	count, err := duro.RecoverStuckInstances(ctx, bundle.Engine)
func RecoverStuckInstances(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckInstances(ctx)
}

// WaitForCompletion polls until the instance reaches a terminal status or
// ctx is cancelled. It is a convenience for tests and CLIs; services should
// react to observer callbacks instead of polling.
func WaitForCompletion(ctx context.Context, eng Engine, instanceID string) (*OrchestrationInstance, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		inst, err := eng.GetInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		switch inst.Status {
		case StatusCompleted, StatusFailed, StatusTerminated:
			return inst, nil
		}

		select {
		case <-ctx.Done():
			return inst, fmt.Errorf("instance %s still %s: %w", instanceID, inst.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}
