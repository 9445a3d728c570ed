package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnradar/vulnradar/internal/model"
)

func snapshotOf(records ...model.CanonicalRecord) *model.Snapshot {
	snap := model.NewSnapshot(time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC))
	for _, rec := range records {
		snap.Put(rec)
	}
	return snap
}

func TestWatchlistExactFoldedMatch(t *testing.T) {
	wl := NewWatchlist([]string{"Apache", "microsoft"}, []string{"OpenSSL"})

	assert.True(t, wl.Matches([]string{"apache"}, nil))
	assert.True(t, wl.Matches(nil, []string{"openssl"}))
	assert.True(t, wl.Matches([]string{"MICROSOFT"}, nil))
	// Exact equality, not substring.
	assert.False(t, wl.Matches([]string{"Apache Software Foundation"}, nil))
	// Absent vendor/product never matches everything.
	assert.False(t, wl.Matches(nil, nil))
}

func TestWatchlistEmptyOrNilNeverMatches(t *testing.T) {
	wl := NewWatchlist(nil, nil)
	assert.False(t, wl.Matches([]string{"apache"}, []string{"openssl"}))

	var nilWL *Watchlist
	assert.False(t, nilWL.Matches([]string{"apache"}, nil))
}

func TestLoadWatchlistFromFile(t *testing.T) {
	path := t.TempDir() + "/watchlist.yaml"
	data := "vendors:\n  - Apache\nproducts:\n  - OpenSSL\n"
	require.NoError(t, writeFile(path, data))

	wl, err := LoadWatchlist(path)
	require.NoError(t, err)
	assert.True(t, wl.Matches([]string{"apache"}, nil))

	_, err = LoadWatchlist(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}

func TestClassifyRelevanceUnion(t *testing.T) {
	wl := NewWatchlist([]string{"apache"}, nil)
	p := 0.95
	snap := snapshotOf(
		model.CanonicalRecord{ID: "CVE-2024-0001", Vendors: []string{"Apache"}},
		model.CanonicalRecord{ID: "CVE-2024-0002", ActiveThreat: true, KEV: &model.KEVDetails{}},
		model.CanonicalRecord{ID: "CVE-2024-0003", InPatchThis: true, PriorityLabel: "WARNING"},
		model.CanonicalRecord{ID: "CVE-2024-0004", ProbabilityScore: &p},
	)

	Classify(snap, wl)

	watch, _ := snap.Get("CVE-2024-0001")
	assert.True(t, watch.WatchlistHit)
	assert.True(t, watch.IsRelevant)
	assert.False(t, watch.IsCritical)

	kev, _ := snap.Get("CVE-2024-0002")
	assert.False(t, kev.WatchlistHit)
	assert.True(t, kev.IsRelevant)
	assert.True(t, kev.IsCritical)

	warn, _ := snap.Get("CVE-2024-0003")
	assert.True(t, warn.IsRelevant)
	assert.False(t, warn.IsCritical)
	assert.True(t, warn.IsWarning)

	// A high probability alone is neither relevant nor critical.
	probOnly, _ := snap.Get("CVE-2024-0004")
	assert.False(t, probOnly.IsRelevant)
	assert.False(t, probOnly.IsCritical)
}

func TestClassifyPatchThisCritical(t *testing.T) {
	wl := NewWatchlist(nil, nil)
	snap := snapshotOf(
		model.CanonicalRecord{ID: "CVE-2024-0001", InPatchThis: true, PriorityLabel: "CRITICAL"},
		model.CanonicalRecord{ID: "CVE-2024-0002", InPatchThis: true, PriorityLabel: "HIGH"},
	)

	Classify(snap, wl)

	critical, _ := snap.Get("CVE-2024-0001")
	assert.True(t, critical.IsCritical)

	high, _ := snap.Get("CVE-2024-0002")
	assert.False(t, high.IsCritical)
	assert.False(t, high.IsWarning)
}
