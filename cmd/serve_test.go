package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnradar/vulnradar/internal/metrics"
	"github.com/vulnradar/vulnradar/internal/model"
	"github.com/vulnradar/vulnradar/internal/store"
)

// stubStore serves canned state to the read-only API.
type stubStore struct {
	runs     []model.Run
	snapshot *model.Snapshot
	registry *model.IssueRegistry
}

func (s *stubStore) CreateRun(context.Context) (*model.Run, error) { return nil, nil }
func (s *stubStore) UpdateRunStatus(context.Context, string, model.RunStatus) error {
	return nil
}
func (s *stubStore) CompleteRun(context.Context, string, *model.RunStats, string) error {
	return nil
}

func (s *stubStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	for i := range s.runs {
		if s.runs[i].ID == id {
			return &s.runs[i], nil
		}
	}
	return nil, errors.New("run not found")
}

func (s *stubStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return s.runs, nil
}

func (s *stubStore) CreatePhase(context.Context, string, string) (*model.RunPhase, error) {
	return nil, nil
}
func (s *stubStore) CompletePhase(context.Context, string, model.PhaseStatus, int64, string) error {
	return nil
}

func (s *stubStore) LatestSnapshot(context.Context) (*model.Snapshot, error) {
	if s.snapshot == nil {
		return model.NewSnapshot(time.Time{}), nil
	}
	return s.snapshot, nil
}

func (s *stubStore) SaveSnapshot(context.Context, *model.Snapshot) error { return nil }

func (s *stubStore) LoadRegistry(context.Context) (*model.IssueRegistry, error) {
	if s.registry == nil {
		return model.NewIssueRegistry(), nil
	}
	return s.registry, nil
}

func (s *stubStore) SaveRegistry(context.Context, *model.IssueRegistry) error { return nil }
func (s *stubStore) Migrate(context.Context) error                            { return nil }
func (s *stubStore) Close() error                                             { return nil }

func testStubStore() *stubStore {
	snap := model.NewSnapshot(time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC))
	snap.Put(model.CanonicalRecord{ID: "CVE-2024-0001", IsRelevant: true})

	registry := model.NewIssueRegistry()
	registry.Put(model.IssueEntry{ID: "CVE-2024-0001", Handle: "42", State: model.IssueOpen})

	return &stubStore{
		runs: []model.Run{
			{ID: "run-1", Status: model.RunStatusComplete, Stats: &model.RunStats{RecordsMerged: 1}},
		},
		snapshot: snap,
		registry: registry,
	}
}

func TestServeHealth(t *testing.T) {
	srv := httptest.NewServer(newRouter(testStubStore(), metrics.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeRuns(t *testing.T) {
	srv := httptest.NewServer(newRouter(testStubStore(), metrics.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs []model.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-1", body.Runs[0].ID)
}

func TestServeRunNotFound(t *testing.T) {
	srv := httptest.NewServer(newRouter(testStubStore(), metrics.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs/nope")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeLatestSnapshot(t *testing.T) {
	srv := httptest.NewServer(newRouter(testStubStore(), metrics.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/snapshot/latest")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RecordCount int                     `json:"record_count"`
		Records     []model.CanonicalRecord `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.RecordCount)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "CVE-2024-0001", body.Records[0].ID)
}

func TestServeRegistry(t *testing.T) {
	srv := httptest.NewServer(newRouter(testStubStore(), metrics.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/registry")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var registry model.IssueRegistry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registry))
	entry, ok := registry.Get("CVE-2024-0001")
	require.True(t, ok)
	assert.Equal(t, "42", entry.Handle)
}

func TestServeMetrics(t *testing.T) {
	srv := httptest.NewServer(newRouter(testStubStore(), metrics.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
