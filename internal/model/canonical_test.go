package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestValidCVEID(t *testing.T) {
	assert.True(t, ValidCVEID("CVE-2024-0001"))
	assert.True(t, ValidCVEID("CVE-2021-44228"))
	assert.True(t, ValidCVEID("CVE-2023-123456"))
	assert.False(t, ValidCVEID("cve-2024-0001"))
	assert.False(t, ValidCVEID("CVE-2024-1"))
	assert.False(t, ValidCVEID("GHSA-xxxx-yyyy"))
	assert.False(t, ValidCVEID(""))
}

func TestNormalizeCVEID(t *testing.T) {
	assert.Equal(t, "CVE-2024-0001", NormalizeCVEID("  cve-2024-0001 "))
}

func TestCVEYear(t *testing.T) {
	assert.Equal(t, 2021, CVEYear("CVE-2021-44228"))
	assert.Equal(t, 0, CVEYear("not-a-cve"))
}

func TestCanonicalRecordValidate_GatedFields(t *testing.T) {
	rec := CanonicalRecord{ID: "CVE-2024-0001"}
	require.NoError(t, rec.Validate())

	// KEV details without active_threat.
	rec.KEV = &KEVDetails{DateAdded: "2024-01-01"}
	assert.Error(t, rec.Validate())

	// Gate and details together are fine.
	rec.ActiveThreat = true
	assert.NoError(t, rec.Validate())

	// active_threat without details is a violation too.
	rec.KEV = nil
	assert.Error(t, rec.Validate())
}

func TestCanonicalRecordValidate_PriorityLabelGate(t *testing.T) {
	rec := CanonicalRecord{ID: "CVE-2024-0002", PriorityLabel: "CRITICAL"}
	assert.Error(t, rec.Validate())

	rec.InPatchThis = true
	assert.NoError(t, rec.Validate())
}

func TestCanonicalRecordValidate_Ranges(t *testing.T) {
	rec := CanonicalRecord{ID: "CVE-2024-0003", ProbabilityScore: f64(1.2)}
	assert.Error(t, rec.Validate())

	rec.ProbabilityScore = f64(0.97)
	assert.NoError(t, rec.Validate())

	rec.CVSS.V3 = &CVSSMetric{Score: 11.0}
	assert.Error(t, rec.Validate())

	rec.CVSS.V3 = &CVSSMetric{Score: 9.8, Severity: "CRITICAL"}
	assert.NoError(t, rec.Validate())

	rec.ReferenceCount = -1
	assert.Error(t, rec.Validate())
}

func TestBestCVSSScore(t *testing.T) {
	rec := CanonicalRecord{ID: "CVE-2024-0004"}
	assert.Zero(t, rec.BestCVSSScore())

	rec.CVSS.V2 = &CVSSMetric{Score: 5.0}
	assert.Equal(t, 5.0, rec.BestCVSSScore())

	rec.CVSS.V3 = &CVSSMetric{Score: 9.8}
	assert.Equal(t, 9.8, rec.BestCVSSScore())
}
