// Package store persists radar state: run history, per-phase timings,
// snapshots, and the notification registry. Two backends exist, SQLite
// for single-host deployments and Postgres for shared ones.
package store

import (
	"context"

	"github.com/vulnradar/vulnradar/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the radar pipeline.
//
// Commit ordering matters: the dispatcher calls SaveRegistry before the
// pipeline calls SaveSnapshot, so a crash between the two leaves a
// registry that is ahead of the snapshot, never behind it.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, stats *model.RunStats, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, status model.PhaseStatus, durationMs int64, errMsg string) error

	// Snapshots
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error

	// Registry
	LoadRegistry(ctx context.Context) (*model.IssueRegistry, error)
	SaveRegistry(ctx context.Context, registry *model.IssueRegistry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
