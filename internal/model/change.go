package model

import "time"

// ChangeType identifies the kind of run-over-run change detected for an
// identifier.
type ChangeType string

const (
	// ChangeNewRelevant fires when an identifier becomes relevant: absent
	// from the previous snapshot, or present there with is_relevant=false.
	ChangeNewRelevant ChangeType = "NEW_RELEVANT"

	// ChangeNewKEV fires when active exploitation is newly confirmed.
	ChangeNewKEV ChangeType = "NEW_KEV"

	// ChangeNewPatchThis fires when the identifier newly appears in the
	// PatchThis feed.
	ChangeNewPatchThis ChangeType = "NEW_PATCHTHIS"

	// ChangeEPSSSpike fires when the exploit probability rose by at least
	// the configured absolute threshold since the previous run.
	ChangeEPSSSpike ChangeType = "EPSS_SPIKE"
)

// Escalates reports whether this change type warrants a follow-up comment
// on an already-tracked identifier.
func (t ChangeType) Escalates() bool {
	switch t {
	case ChangeNewKEV, ChangeNewPatchThis, ChangeEPSSSpike:
		return true
	}
	return false
}

// Change is one detected difference between the previous and current
// snapshots. Changes live for a single run; the dispatcher consumes them
// to drive the issue registry.
type Change struct {
	ID         string     `json:"cve_id"`
	Type       ChangeType `json:"change_type"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}
