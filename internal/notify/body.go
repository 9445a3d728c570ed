// Package notify implements the notification state machine: deciding,
// per identifier, whether a detected change opens a new tracker issue,
// escalates an existing one, or is suppressed by the cooldown.
package notify

import (
	"fmt"
	"strings"

	"github.com/vulnradar/vulnradar/internal/model"
)

// Priority returns the alert tier printed in titles and bodies.
func Priority(rec *model.CanonicalRecord) string {
	switch {
	case rec.IsCritical:
		return "CRITICAL"
	case rec.IsWarning:
		return "WARNING"
	default:
		return "ALERT"
	}
}

// IssueTitle builds the tracker issue title for a record.
func IssueTitle(rec *model.CanonicalRecord) string {
	return fmt.Sprintf("[VulnRadar] %s: %s", Priority(rec), rec.ID)
}

// IssueLabels builds the label set for a new issue.
func IssueLabels(rec *model.CanonicalRecord) []string {
	labels := []string{"vulnradar", "alert"}
	if rec.IsCritical {
		labels = append(labels, "critical")
	}
	if rec.IsWarning {
		labels = append(labels, "warning")
	}
	if rec.ActiveThreat {
		labels = append(labels, "kev")
	}
	return labels
}

// IssueBody renders the issue body: the signal summary, the description,
// and a link to the authoritative record.
func IssueBody(rec *model.CanonicalRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CVE: %s\n", rec.ID)
	fmt.Fprintf(&b, "Priority: %s\n\n", Priority(rec))

	b.WriteString("Signals:\n")
	fmt.Fprintf(&b, "- PatchThis: %s\n", yesNo(rec.InPatchThis))
	fmt.Fprintf(&b, "- Watchlist: %s\n", yesNo(rec.WatchlistHit))
	fmt.Fprintf(&b, "- CISA KEV: %s\n", yesNo(rec.ActiveThreat))
	if rec.KEV != nil && rec.KEV.DueDate != "" {
		fmt.Fprintf(&b, "- KEV Due Date: %s\n", rec.KEV.DueDate)
	}
	fmt.Fprintf(&b, "- EPSS: %.3f\n", rec.Probability())
	fmt.Fprintf(&b, "- CVSS: %.1f\n\n", rec.BestCVSSScore())

	if desc := strings.TrimSpace(rec.Description); desc != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", desc)
	}

	fmt.Fprintf(&b, "CVE.org record: https://www.cve.org/CVERecord?id=%s", rec.ID)
	return b.String()
}

// EscalationComment renders the follow-up comment for one change.
func EscalationComment(change model.Change, rec *model.CanonicalRecord) string {
	var b strings.Builder

	switch change.Type {
	case model.ChangeNewKEV:
		b.WriteString("Escalation: now listed in the CISA KEV catalog (active exploitation confirmed).\n")
		if rec.KEV != nil {
			if rec.KEV.DueDate != "" {
				fmt.Fprintf(&b, "- Remediation due: %s\n", rec.KEV.DueDate)
			}
			if rec.KEV.RequiredAction != "" {
				fmt.Fprintf(&b, "- Required action: %s\n", rec.KEV.RequiredAction)
			}
		}
	case model.ChangeNewPatchThis:
		fmt.Fprintf(&b, "Escalation: now flagged by PatchThis at priority %s.\n", rec.PriorityLabel)
	case model.ChangeEPSSSpike:
		fmt.Fprintf(&b, "Escalation: EPSS probability rose from %s to %s since the previous run.\n",
			change.OldValue, change.NewValue)
	default:
		fmt.Fprintf(&b, "Escalation: %s.\n", change.Type)
	}

	fmt.Fprintf(&b, "\nDetected at %s.", change.DetectedAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
