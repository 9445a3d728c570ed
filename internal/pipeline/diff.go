package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/model"
)

// Detector compares the previous and current snapshots and emits the
// typed change events the dispatcher consumes.
type Detector struct {
	// EPSSThreshold is the minimum absolute probability increase that
	// counts as a spike. The comparison is inclusive: a rise of exactly
	// the threshold fires.
	EPSSThreshold float64
}

// Diff walks the identifiers of current in sorted order and emits every
// change relative to previous. One identifier may emit several changes
// in a single run. Identifiers that disappeared from current are feed
// churn, not a signal: logged, never escalated.
func (d *Detector) Diff(previous, current *model.Snapshot, now time.Time) []model.Change {
	var changes []model.Change

	for _, id := range current.IDs() {
		cur, _ := current.Get(id)
		prev, existed := previous.Get(id)

		if cur.IsRelevant && (!existed || !prev.IsRelevant) {
			changes = append(changes, model.Change{
				ID:         id,
				Type:       model.ChangeNewRelevant,
				NewValue:   "relevant",
				DetectedAt: now,
			})
		}
		if cur.ActiveThreat && (!existed || !prev.ActiveThreat) {
			changes = append(changes, model.Change{
				ID:         id,
				Type:       model.ChangeNewKEV,
				NewValue:   kevValue(&cur),
				DetectedAt: now,
			})
		}
		if cur.InPatchThis && (!existed || !prev.InPatchThis) {
			changes = append(changes, model.Change{
				ID:         id,
				Type:       model.ChangeNewPatchThis,
				NewValue:   cur.PriorityLabel,
				DetectedAt: now,
			})
		}
		if existed && prev.ProbabilityScore != nil && cur.ProbabilityScore != nil {
			delta := *cur.ProbabilityScore - *prev.ProbabilityScore
			if delta >= d.EPSSThreshold {
				changes = append(changes, model.Change{
					ID:         id,
					Type:       model.ChangeEPSSSpike,
					OldValue:   fmt.Sprintf("%.5f", *prev.ProbabilityScore),
					NewValue:   fmt.Sprintf("%.5f", *cur.ProbabilityScore),
					DetectedAt: now,
				})
			}
		}
	}

	disappeared := 0
	for _, id := range previous.IDs() {
		if _, ok := current.Get(id); !ok {
			disappeared++
		}
	}
	if disappeared > 0 {
		zap.L().Info("diff: identifiers dropped out of current snapshot",
			zap.Int("count", disappeared))
	}

	zap.L().Info("diff: changes detected", zap.Int("count", len(changes)))
	return changes
}

func kevValue(rec *model.CanonicalRecord) string {
	if rec.KEV != nil && rec.KEV.DueDate != "" {
		return "due " + rec.KEV.DueDate
	}
	return "active threat"
}
