package duro

import (
	"database/sql"

	"github.com/petrijr/duro/internal/engine"
	workerpkg "github.com/petrijr/duro/pkg/worker"
)

// WorkerBundle wires together a durable Engine and a Worker consuming its
// work queue. Unlike LocalRunner, state survives process restarts; call
// RecoverStuckInstances on startup to resume instances a crash left behind.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker
}

// NewSQLiteBundle constructs a durable Engine + Worker combo with instance
// records, histories, entity state and the work queue all persisted in the
// provided SQLite database.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:duro.db?_journal=WAL")
//	bundle, err := duro.NewSQLiteBundle(db, reg, ents, worker.Config{MaxAttempts: 3})
//	count, _ := duro.RecoverStuckInstances(ctx, bundle.Engine)
//	go bundle.Worker.Run(ctx)
func NewSQLiteBundle(db *sql.DB, reg *Registry, ents *EntityRegistry, cfg workerpkg.Config) (*WorkerBundle, error) {
	return NewSQLiteBundleWithObserver(db, reg, ents, cfg, nil)
}

// NewSQLiteBundleWithObserver is NewSQLiteBundle with an Observer attached
// to the engine.
func NewSQLiteBundleWithObserver(db *sql.DB, reg *Registry, ents *EntityRegistry, cfg workerpkg.Config, obs Observer) (*WorkerBundle, error) {
	eng, err := engine.NewSQLiteEngineWithObserver(db, reg, ents, obs)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.New(eng, eng.Queue(), cfg),
	}, nil
}
