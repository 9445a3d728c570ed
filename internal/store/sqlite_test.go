package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnradar/vulnradar/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "radar.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusFetching))

	stats := &model.RunStats{RecordsMerged: 42, Critical: 3, IssuesCreated: 2}
	require.NoError(t, s.CompleteRun(ctx, run.ID, stats, ""))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 42, got.Stats.RecordsMerged)
}

func TestSQLiteCompleteRunWithError(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, run.ID, &model.RunStats{}, "all feeds unavailable"))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "all feeds unavailable", got.Error)
}

func TestSQLiteUpdateMissingRun(t *testing.T) {
	s := newTestSQLite(t)
	assert.Error(t, s.UpdateRunStatus(context.Background(), "no-such-run", model.RunStatusComplete))
}

func TestSQLiteListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, first.ID, &model.RunStats{}, ""))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, first.ID, complete[0].ID)
}

func TestSQLitePhases(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)

	phase, err := s.CreatePhase(ctx, run.ID, "fetch")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusRunning, phase.Status)

	require.NoError(t, s.CompletePhase(ctx, phase.ID, model.PhaseStatusComplete, 1200, ""))
	assert.Error(t, s.CompletePhase(ctx, "no-such-phase", model.PhaseStatusComplete, 0, ""))
}

func TestSQLiteSnapshotRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// First run sees an empty previous snapshot.
	prev, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, prev.Len())

	runAt := time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC)
	snap := model.NewSnapshot(runAt)
	p := 0.42
	snap.Put(model.CanonicalRecord{
		ID:               "CVE-2024-0001",
		Description:      "Buffer overflow",
		ActiveThreat:     true,
		KEV:              &model.KEVDetails{DueDate: "2026-09-01"},
		ProbabilityScore: &p,
		IsRelevant:       true,
		IsCritical:       true,
	})
	snap.Put(model.CanonicalRecord{ID: "CVE-2024-0002"})
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	rec, ok := got.Get("CVE-2024-0001")
	require.True(t, ok)
	assert.True(t, rec.ActiveThreat)
	require.NotNil(t, rec.KEV)
	assert.Equal(t, "2026-09-01", rec.KEV.DueDate)
	require.NotNil(t, rec.ProbabilityScore)
	assert.InDelta(t, 0.42, *rec.ProbabilityScore, 1e-9)

	// A later snapshot becomes the latest.
	later := model.NewSnapshot(runAt.Add(24 * time.Hour))
	later.Put(model.CanonicalRecord{ID: "CVE-2024-0003"})
	require.NoError(t, s.SaveSnapshot(ctx, later))

	got, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestSQLiteRegistryRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// Empty registry on first load.
	reg, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Zero(t, reg.Len())

	now := time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC)
	entry := model.IssueEntry{ID: "CVE-2024-0001", Handle: "42", State: model.IssueOpen, CreatedAt: now}
	entry.MarkEscalated(model.ChangeEPSSSpike, now)
	reg.Put(entry)
	require.NoError(t, s.SaveRegistry(ctx, reg))

	// Saving again upserts the singleton row.
	reg.Put(model.IssueEntry{ID: "CVE-2024-0002", Handle: "43", State: model.IssueClosed, CreatedAt: now})
	require.NoError(t, s.SaveRegistry(ctx, reg))

	got, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	loaded, ok := got.Get("CVE-2024-0001")
	require.True(t, ok)
	assert.Equal(t, "42", loaded.Handle)
	assert.True(t, loaded.LastEscalatedAt[model.ChangeEPSSSpike].Equal(now))
}
