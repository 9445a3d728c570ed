package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueEntryCooldown(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	entry := IssueEntry{ID: "CVE-2024-0001", Handle: "17", State: IssueOpen}

	assert.False(t, entry.EscalatedWithin(ChangeEPSSSpike, now, 24*time.Hour))

	entry.MarkEscalated(ChangeEPSSSpike, now)
	assert.True(t, entry.EscalatedWithin(ChangeEPSSSpike, now.Add(time.Hour), 24*time.Hour))
	assert.False(t, entry.EscalatedWithin(ChangeEPSSSpike, now.Add(25*time.Hour), 24*time.Hour))

	// Cooldown is per change type.
	assert.False(t, entry.EscalatedWithin(ChangeNewKEV, now.Add(time.Hour), 24*time.Hour))
}

func TestIssueRegistryClone(t *testing.T) {
	now := time.Now().UTC()
	reg := NewIssueRegistry()
	entry := IssueEntry{ID: "CVE-2024-0001", Handle: "42", State: IssueOpen, CreatedAt: now}
	entry.MarkEscalated(ChangeNewKEV, now)
	reg.Put(entry)

	clone := reg.Clone()
	got, ok := clone.Get("CVE-2024-0001")
	require.True(t, ok)
	got.MarkEscalated(ChangeEPSSSpike, now)
	clone.Put(got)
	clone.Put(IssueEntry{ID: "CVE-2024-0002", Handle: "43", State: IssueClosed})

	// Original is untouched.
	orig, ok := reg.Get("CVE-2024-0001")
	require.True(t, ok)
	assert.NotContains(t, orig.LastEscalatedAt, ChangeEPSSSpike)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestIssueRegistryNilSafe(t *testing.T) {
	var reg *IssueRegistry
	_, ok := reg.Get("CVE-2024-0001")
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.IDs())
	assert.NotNil(t, reg.Clone())
}

func TestSnapshotIDsSorted(t *testing.T) {
	snap := NewSnapshot(time.Now())
	snap.Put(CanonicalRecord{ID: "CVE-2024-0300"})
	snap.Put(CanonicalRecord{ID: "CVE-2023-0001"})
	snap.Put(CanonicalRecord{ID: "CVE-2024-0001"})

	assert.Equal(t, []string{"CVE-2023-0001", "CVE-2024-0001", "CVE-2024-0300"}, snap.IDs())

	recs := snap.SortedRecords()
	require.Len(t, recs, 3)
	assert.Equal(t, "CVE-2023-0001", recs[0].ID)
}
