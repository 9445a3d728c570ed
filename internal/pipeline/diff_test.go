package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnradar/vulnradar/internal/model"
)

var diffNow = time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC)

func changeTypes(changes []model.Change, id string) []model.ChangeType {
	var types []model.ChangeType
	for _, c := range changes {
		if c.ID == id {
			types = append(types, c.Type)
		}
	}
	return types
}

func TestDiffNewRelevant(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	prev := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0002", IsRelevant: false})
	cur := snapshotOf(
		model.CanonicalRecord{ID: "CVE-2024-0001", IsRelevant: true}, // absent before
		model.CanonicalRecord{ID: "CVE-2024-0002", IsRelevant: true}, // present, not relevant before
		model.CanonicalRecord{ID: "CVE-2024-0003", IsRelevant: false},
	)

	changes := d.Diff(prev, cur, diffNow)
	assert.Equal(t, []model.ChangeType{model.ChangeNewRelevant}, changeTypes(changes, "CVE-2024-0001"))
	assert.Equal(t, []model.ChangeType{model.ChangeNewRelevant}, changeTypes(changes, "CVE-2024-0002"))
	assert.Empty(t, changeTypes(changes, "CVE-2024-0003"))
}

func TestDiffAlreadyRelevantEmitsNothing(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	prev := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", IsRelevant: true})
	cur := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", IsRelevant: true})

	assert.Empty(t, d.Diff(prev, cur, diffNow))
}

func TestDiffEPSSSpikeBoundary(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	prev := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", ProbabilityScore: f64(0.40)})

	// Delta of exactly the threshold fires.
	cur := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", ProbabilityScore: f64(0.50)})
	changes := d.Diff(prev, cur, diffNow)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ChangeEPSSSpike, changes[0].Type)
	assert.Equal(t, "0.40000", changes[0].OldValue)
	assert.Equal(t, "0.50000", changes[0].NewValue)

	// Just under the threshold does not.
	cur = snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", ProbabilityScore: f64(0.49)})
	assert.Empty(t, d.Diff(prev, cur, diffNow))
}

func TestDiffEPSSSpikeNeedsBothScores(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	// No previous score: a first-ever reading is not a spike.
	prev := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001"})
	cur := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", ProbabilityScore: f64(0.90)})
	assert.Empty(t, d.Diff(prev, cur, diffNow))

	// No current score either.
	prev = snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", ProbabilityScore: f64(0.20)})
	cur = snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001"})
	assert.Empty(t, d.Diff(prev, cur, diffNow))
}

func TestDiffMultipleChangesPerIdentifier(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	prev := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", ProbabilityScore: f64(0.10)})
	cur := snapshotOf(model.CanonicalRecord{
		ID:               "CVE-2024-0001",
		IsRelevant:       true,
		ActiveThreat:     true,
		KEV:              &model.KEVDetails{DueDate: "2026-09-01"},
		InPatchThis:      true,
		PriorityLabel:    "CRITICAL",
		ProbabilityScore: f64(0.60),
	})

	changes := d.Diff(prev, cur, diffNow)
	assert.Equal(t, []model.ChangeType{
		model.ChangeNewRelevant,
		model.ChangeNewKEV,
		model.ChangeNewPatchThis,
		model.ChangeEPSSSpike,
	}, changeTypes(changes, "CVE-2024-0001"))
}

func TestDiffDisappearedIdentifierEmitsNothing(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	prev := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0001", IsRelevant: true})
	cur := snapshotOf(model.CanonicalRecord{ID: "CVE-2024-0002", IsRelevant: false})

	assert.Empty(t, d.Diff(prev, cur, diffNow))
}

func TestDiffOrderedByIdentifier(t *testing.T) {
	d := &Detector{EPSSThreshold: 0.10}

	prev := model.NewSnapshot(diffNow)
	cur := snapshotOf(
		model.CanonicalRecord{ID: "CVE-2024-0003", IsRelevant: true},
		model.CanonicalRecord{ID: "CVE-2024-0001", IsRelevant: true},
		model.CanonicalRecord{ID: "CVE-2024-0002", IsRelevant: true},
	)

	changes := d.Diff(prev, cur, diffNow)
	require.Len(t, changes, 3)
	assert.Equal(t, "CVE-2024-0001", changes[0].ID)
	assert.Equal(t, "CVE-2024-0002", changes[1].ID)
	assert.Equal(t, "CVE-2024-0003", changes[2].ID)
}
