package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the orchestration host for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay activations.
type Observer interface {
	// OnOrchestrationStarted is called once when an instance is first
	// started, before its first activation.
	OnOrchestrationStarted(ctx context.Context, inst *OrchestrationInstance)

	// OnOrchestrationCompleted is called when an instance reaches
	// StatusCompleted.
	OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance)

	// OnOrchestrationFailed is called when an instance transitions to
	// StatusFailed, including engine-detected non-determinism.
	OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, failure *FailureDetails)

	// OnOrchestrationSuspended is called when an activation ends without
	// completing, with the number of actions it scheduled.
	OnOrchestrationSuspended(ctx context.Context, inst *OrchestrationInstance, scheduled int)

	// OnActionScheduled is called for every newly materialized action,
	// after it has been recorded in history.
	OnActionScheduled(ctx context.Context, inst *OrchestrationInstance, action Action)

	// OnActivityCompleted is called after an activity function returns, for
	// both successes and failures (err != nil).
	OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, duration time.Duration)

	// OnEntityBatchProcessed is called after an entity operation batch has
	// been applied, with the number of operations in the batch.
	OnEntityBatchProcessed(ctx context.Context, entityID string, operations int, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnOrchestrationStarted(ctx context.Context, inst *OrchestrationInstance)   {}
func (NoopObserver) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {}
func (NoopObserver) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, failure *FailureDetails) {
}
func (NoopObserver) OnOrchestrationSuspended(ctx context.Context, inst *OrchestrationInstance, scheduled int) {
}
func (NoopObserver) OnActionScheduled(ctx context.Context, inst *OrchestrationInstance, action Action) {
}
func (NoopObserver) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
}
func (NoopObserver) OnEntityBatchProcessed(ctx context.Context, entityID string, operations int, err error) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnOrchestrationStarted(ctx context.Context, inst *OrchestrationInstance) {
	for _, o := range c.observers {
		o.OnOrchestrationStarted(ctx, inst)
	}
}

func (c *CompositeObserver) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {
	for _, o := range c.observers {
		o.OnOrchestrationCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, failure *FailureDetails) {
	for _, o := range c.observers {
		o.OnOrchestrationFailed(ctx, inst, failure)
	}
}

func (c *CompositeObserver) OnOrchestrationSuspended(ctx context.Context, inst *OrchestrationInstance, scheduled int) {
	for _, o := range c.observers {
		o.OnOrchestrationSuspended(ctx, inst, scheduled)
	}
}

func (c *CompositeObserver) OnActionScheduled(ctx context.Context, inst *OrchestrationInstance, action Action) {
	for _, o := range c.observers {
		o.OnActionScheduled(ctx, inst, action)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, instanceID, taskID, name, err, d)
	}
}

func (c *CompositeObserver) OnEntityBatchProcessed(ctx context.Context, entityID string, operations int, err error) {
	for _, o := range c.observers {
		o.OnEntityBatchProcessed(ctx, entityID, operations, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs orchestration / activity
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnOrchestrationStarted(ctx context.Context, inst *OrchestrationInstance) {
	o.Logger.InfoContext(ctx, "orchestration_started",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {
	o.Logger.InfoContext(ctx, "orchestration_completed",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, failure *FailureDetails) {
	o.Logger.ErrorContext(ctx, "orchestration_failed",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("kind", string(failure.Kind)),
		slog.String("error", failure.Message),
	)
}

func (o *LoggingObserver) OnOrchestrationSuspended(ctx context.Context, inst *OrchestrationInstance, scheduled int) {
	o.Logger.DebugContext(ctx, "orchestration_suspended",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.Int("actions_scheduled", scheduled),
	)
}

func (o *LoggingObserver) OnActionScheduled(ctx context.Context, inst *OrchestrationInstance, action Action) {
	o.Logger.DebugContext(ctx, "action_scheduled",
		slog.String("instance_id", inst.ID),
		slog.String("type", string(action.Type)),
		slog.String("name", action.Name),
		slog.Int64("task_id", action.TaskID),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("instance_id", instanceID),
		slog.Int64("task_id", taskID),
		slog.String("activity", name),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnEntityBatchProcessed(ctx context.Context, entityID string, operations int, err error) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "entity_batch_processed",
		slog.String("entity_id", entityID),
		slog.Int("operations", operations),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate activity durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	orchestrationsStarted   atomic.Int64
	orchestrationsCompleted atomic.Int64
	orchestrationsFailed    atomic.Int64
	activitiesCompleted     atomic.Int64
	totalActivityDuration   atomic.Int64 // nanoseconds
	entityBatches           atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	OrchestrationsStarted   int64
	OrchestrationsCompleted int64
	OrchestrationsFailed    int64
	PendingOrchestrations   int64

	ActivitiesCompleted int64
	AvgActivityDuration time.Duration

	EntityBatches int64
}

func (m *BasicMetrics) OnOrchestrationStarted(ctx context.Context, inst *OrchestrationInstance) {
	m.orchestrationsStarted.Add(1)
}

func (m *BasicMetrics) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {
	m.orchestrationsCompleted.Add(1)
}

func (m *BasicMetrics) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, failure *FailureDetails) {
	m.orchestrationsFailed.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
	// Only count successful activities for average duration.
	if err == nil {
		m.activitiesCompleted.Add(1)
		m.totalActivityDuration.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnEntityBatchProcessed(ctx context.Context, entityID string, operations int, err error) {
	if err == nil {
		m.entityBatches.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.orchestrationsStarted.Load()
	completed := m.orchestrationsCompleted.Load()
	failed := m.orchestrationsFailed.Load()
	activities := m.activitiesCompleted.Load()
	totalNs := m.totalActivityDuration.Load()

	var avg time.Duration
	if activities > 0 {
		avg = time.Duration(totalNs / activities)
	}

	return BasicMetricsSnapshot{
		OrchestrationsStarted:   started,
		OrchestrationsCompleted: completed,
		OrchestrationsFailed:    failed,
		PendingOrchestrations:   started - completed - failed,
		ActivitiesCompleted:     activities,
		AvgActivityDuration:     avg,
		EntityBatches:           m.entityBatches.Load(),
	}
}
