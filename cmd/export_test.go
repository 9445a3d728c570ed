package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnradar/vulnradar/internal/model"
)

func TestBuildWorkbook(t *testing.T) {
	epss := 0.92
	snap := model.NewSnapshot(time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC))
	snap.Put(model.CanonicalRecord{
		ID:               "CVE-2024-0001",
		Description:      "Buffer overflow",
		Vendors:          []string{"Apache"},
		Products:         []string{"HTTP Server"},
		CVSS:             model.CVSS{V3: &model.CVSSMetric{Score: 9.8, Severity: "CRITICAL"}},
		ProbabilityScore: &epss,
		ActiveThreat:     true,
		KEV:              &model.KEVDetails{DueDate: "2026-09-10"},
		IsRelevant:       true,
		IsCritical:       true,
	})
	snap.Put(model.CanonicalRecord{ID: "CVE-2024-0002", Description: "Minor issue"})

	file, err := buildWorkbook(snap)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 2)

	all := file.Sheets[0]
	assert.Equal(t, "All Records", all.Name)
	// Header plus both records.
	require.Len(t, all.Rows, 3)
	assert.Equal(t, "CVE", all.Rows[0].Cells[0].Value)
	assert.Equal(t, "CVE-2024-0001", all.Rows[1].Cells[0].Value)
	assert.Equal(t, "2026-09-10", all.Rows[1].Cells[4].Value)
	assert.Equal(t, "Apache", all.Rows[1].Cells[9].Value)
	assert.Equal(t, "CVE-2024-0002", all.Rows[2].Cells[0].Value)

	// Only the relevant record makes the second sheet.
	relevant := file.Sheets[1]
	assert.Equal(t, "Relevant", relevant.Name)
	require.Len(t, relevant.Rows, 2)
	assert.Equal(t, "CVE-2024-0001", relevant.Rows[1].Cells[0].Value)
}
