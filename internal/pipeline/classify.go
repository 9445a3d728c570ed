package pipeline

import "github.com/vulnradar/vulnradar/internal/model"

// Classify derives the relevance and criticality verdicts for every
// record in the snapshot, in place. A record is relevant when it matches
// the watchlist, is actively exploited, or appears in PatchThis —
// breadth of coverage beyond the operator's explicit watchlist.
//
// Criticality requires relevance plus either confirmed exploitation or
// PatchThis's own highest tier. The EPSS probability never flips the
// verdict on its own: probability is noisy day to day and feeds the
// spike signal instead.
func Classify(snapshot *model.Snapshot, watchlist *Watchlist) {
	for id, rec := range snapshot.Records {
		rec.WatchlistHit = watchlist.Matches(rec.Vendors, rec.Products)
		rec.IsRelevant = rec.WatchlistHit || rec.ActiveThreat || rec.InPatchThis

		rec.IsCritical = rec.IsRelevant &&
			(rec.ActiveThreat || (rec.InPatchThis && rec.PriorityLabel == "CRITICAL"))

		// The WARNING tier flags exploit tooling for software that tends to
		// show up as shadow IT. Not critical, but worth surfacing.
		rec.IsWarning = !rec.IsCritical && rec.InPatchThis && rec.PriorityLabel == "WARNING"

		snapshot.Records[id] = rec
	}
}
