package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vulnradar/vulnradar/internal/model"
)

// Reporter writes the run's two output files: the machine-readable
// dataset (radar_data.json) and the human-readable Markdown report.
type Reporter struct {
	Dir        string
	DataFile   string
	ReportFile string
}

// radarData is the shape of radar_data.json: the relevant slice of the
// snapshot plus run metadata, which downstream notification tooling
// consumes.
type radarData struct {
	GeneratedAt  time.Time               `json:"generated_at"`
	RecordCount  int                     `json:"record_count"`
	MissingFeeds []string                `json:"missing_feeds,omitempty"`
	Items        []model.CanonicalRecord `json:"items"`
}

// WriteData emits the relevant records as JSON, sorted by identifier.
func (r *Reporter) WriteData(snapshot *model.Snapshot, missingFeeds []string) error {
	items := make([]model.CanonicalRecord, 0)
	for _, rec := range snapshot.SortedRecords() {
		if rec.IsRelevant {
			items = append(items, rec)
		}
	}

	doc := radarData{
		GeneratedAt:  snapshot.RunAt,
		RecordCount:  len(items),
		MissingFeeds: missingFeeds,
		Items:        items,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: marshal dataset")
	}
	return r.write(r.DataFile, append(data, '\n'))
}

// WriteReport emits the Markdown digest: stats, data-quality notes, the
// change list, and the critical records table.
func (r *Reporter) WriteReport(snapshot *model.Snapshot, changes []model.Change, stats *model.RunStats) error {
	var b strings.Builder

	b.WriteString("# VulnRadar Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", snapshot.RunAt.UTC().Format("2006-01-02 15:04 MST"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Records merged: %d\n", stats.RecordsMerged)
	fmt.Fprintf(&b, "- Relevant: %d\n", stats.Relevant)
	fmt.Fprintf(&b, "- Critical: %d\n", stats.Critical)
	fmt.Fprintf(&b, "- Warning: %d\n", stats.Warning)
	fmt.Fprintf(&b, "- Changes since previous run: %d\n", stats.Changes)
	fmt.Fprintf(&b, "- Issues created: %d, escalations: %d, suppressed: %d\n\n",
		stats.IssuesCreated, stats.Escalations, stats.Suppressed)

	if len(stats.FeedsFailed) > 0 {
		b.WriteString("## Data Quality\n\n")
		fmt.Fprintf(&b, "The following feeds were unavailable this run; their fields are absent from every record: %s.\n\n",
			strings.Join(stats.FeedsFailed, ", "))
	}

	if len(changes) > 0 {
		b.WriteString("## Changes\n\n")
		b.WriteString("| CVE | Change | Detail |\n")
		b.WriteString("|-----|--------|--------|\n")
		for _, c := range changes {
			detail := c.NewValue
			if c.OldValue != "" {
				detail = c.OldValue + " -> " + c.NewValue
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", c.ID, c.Type, detail)
		}
		b.WriteString("\n")
	}

	var criticals []model.CanonicalRecord
	for _, rec := range snapshot.SortedRecords() {
		if rec.IsCritical {
			criticals = append(criticals, rec)
		}
	}
	if len(criticals) > 0 {
		b.WriteString("## Critical\n\n")
		b.WriteString("| CVE | KEV | PatchThis | EPSS | CVSS |\n")
		b.WriteString("|-----|-----|-----------|------|------|\n")
		for _, rec := range criticals {
			fmt.Fprintf(&b, "| %s | %s | %s | %.3f | %.1f |\n",
				rec.ID, yesNo(rec.ActiveThreat), yesNo(rec.InPatchThis),
				rec.Probability(), rec.BestCVSSScore())
		}
		b.WriteString("\n")
	}

	return r.write(r.ReportFile, []byte(b.String()))
}

func (r *Reporter) write(name string, data []byte) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create %s", r.Dir)
	}
	path := filepath.Join(r.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
