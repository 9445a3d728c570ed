// Package model defines the typed records flowing through the radar
// pipeline: per-feed source projections, the merged canonical record,
// run snapshots, change events, and the issue registry.
package model

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// NormalizeCVEID upper-cases and trims a CVE identifier.
func NormalizeCVEID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ValidCVEID reports whether id is a well-formed CVE identifier.
func ValidCVEID(id string) bool {
	return cveIDPattern.MatchString(id)
}

// CVEYear extracts the year component of a CVE identifier. Returns 0 for
// malformed ids.
func CVEYear(id string) int {
	if !ValidCVEID(id) {
		return 0
	}
	year, err := strconv.Atoi(id[4:8])
	if err != nil {
		return 0
	}
	return year
}

// KEVDetails carries the remediation fields of a KEV catalog entry.
// Present on a canonical record iff ActiveThreat is true.
type KEVDetails struct {
	DateAdded      string `json:"dateAdded,omitempty"`
	RequiredAction string `json:"requiredAction,omitempty"`
	DueDate        string `json:"dueDate,omitempty"`
}

// CanonicalRecord is the merged, deduplicated representation of one
// vulnerability across all feeds: exactly one per identifier per run.
type CanonicalRecord struct {
	ID          string   `json:"cve_id"`
	Description string   `json:"description,omitempty"`
	Vendors     []string `json:"vendors,omitempty"`
	Products    []string `json:"products,omitempty"`

	CVSS        CVSS     `json:"cvss"`
	WeaknessIDs []string `json:"weakness_ids,omitempty"`

	ReferenceCount       int `json:"reference_count"`
	AffectedProductCount int `json:"affected_product_count"`

	ProbabilityScore *float64 `json:"probability_score,omitempty"`

	ActiveThreat bool        `json:"active_threat"`
	KEV          *KEVDetails `json:"kev,omitempty"`

	InPatchThis   bool   `json:"in_patchthis"`
	PriorityLabel string `json:"priority_label,omitempty"`

	WatchlistHit bool `json:"watchlist_hit"`
	IsRelevant   bool `json:"is_relevant"`
	IsCritical   bool `json:"is_critical"`
	IsWarning    bool `json:"is_warning"`
}

// Validate enforces the construction invariants: well-formed identifier,
// boolean-gated optionals present iff their gate is set, and scores inside
// their defined ranges.
func (r *CanonicalRecord) Validate() error {
	if !ValidCVEID(r.ID) {
		return eris.Errorf("model: malformed identifier %q", r.ID)
	}
	if r.ActiveThreat != (r.KEV != nil) {
		return eris.Errorf("model: %s: kev details present=%v but active_threat=%v", r.ID, r.KEV != nil, r.ActiveThreat)
	}
	if !r.InPatchThis && r.PriorityLabel != "" {
		return eris.Errorf("model: %s: priority_label set without in_patchthis", r.ID)
	}
	if r.ProbabilityScore != nil {
		if p := *r.ProbabilityScore; p < 0 || p > 1 {
			return eris.Errorf("model: %s: probability_score %v out of range", r.ID, p)
		}
	}
	for _, m := range []*CVSSMetric{r.CVSS.V3, r.CVSS.V2} {
		if m != nil && (m.Score < 0 || m.Score > 10) {
			return eris.Errorf("model: %s: cvss score %v out of range", r.ID, m.Score)
		}
	}
	if r.ReferenceCount < 0 || r.AffectedProductCount < 0 {
		return eris.Errorf("model: %s: negative count", r.ID)
	}
	return nil
}

// BestCVSSScore returns the v3 score when present, else the v2 score,
// else 0. Used for notification ordering only.
func (r *CanonicalRecord) BestCVSSScore() float64 {
	if r.CVSS.V3 != nil {
		return r.CVSS.V3.Score
	}
	if r.CVSS.V2 != nil {
		return r.CVSS.V2.Score
	}
	return 0
}

// Probability returns the EPSS probability or 0 when absent.
func (r *CanonicalRecord) Probability() float64 {
	if r.ProbabilityScore == nil {
		return 0
	}
	return *r.ProbabilityScore
}
