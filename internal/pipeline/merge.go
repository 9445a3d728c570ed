// Package pipeline implements the reconciliation core: merging the
// per-feed record sets into one canonical snapshot, watchlist matching,
// criticality classification, run-over-run diffing, and the scan
// orchestrator that ties fetch, merge, notify, and commit together.
package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/feed"
	"github.com/vulnradar/vulnradar/internal/model"
)

// Merger folds the five per-feed record sets into one canonical record
// per identifier. Field precedence is explicit and per field family, so
// the result never depends on the order feeds are visited.
type Merger struct {
	MinYear int
	MaxYear int
}

// Merge builds the current snapshot from one run's feed set. Identifiers
// outside the scan window are never constructed; identifiers surfaced
// only by KEV or PatchThis are materialized with empty base fields.
func (m *Merger) Merge(set *feed.Set, runAt time.Time) *model.Snapshot {
	base := make(map[string]model.BaseRecord, len(set.Base))
	for _, rec := range set.Base {
		if !m.admit(rec.ID) {
			continue
		}
		base[rec.ID] = rec
	}

	kev := make(map[string]model.KEVRecord, len(set.KEV))
	for _, rec := range set.KEV {
		if !m.admit(rec.ID) {
			continue
		}
		kev[rec.ID] = rec
	}

	patchthis := make(map[string]model.PatchThisRecord, len(set.PatchThis))
	for _, rec := range set.PatchThis {
		if !m.admit(rec.ID) {
			continue
		}
		patchthis[rec.ID] = rec
	}

	epss := make(map[string]model.EPSSRecord, len(set.EPSS))
	for _, rec := range set.EPSS {
		epss[rec.ID] = rec
	}
	nvd := make(map[string]model.NVDRecord, len(set.NVD))
	for _, rec := range set.NVD {
		nvd[rec.ID] = rec
	}

	// The universe is base ∪ KEV ∪ PatchThis: the threat feeds can surface
	// identifiers the base feed has not published yet. EPSS and NVD only
	// enrich identifiers already in the universe.
	universe := make(map[string]struct{}, len(base))
	for id := range base {
		universe[id] = struct{}{}
	}
	for id := range kev {
		universe[id] = struct{}{}
	}
	for id := range patchthis {
		universe[id] = struct{}{}
	}

	snapshot := model.NewSnapshot(runAt)
	dropped := 0
	for id := range universe {
		rec := mergeOne(id, base, kev, epss, patchthis, nvd)
		if err := rec.Validate(); err != nil {
			dropped++
			zap.L().Warn("merge: dropping invalid record", zap.String("cve", id), zap.Error(err))
			continue
		}
		snapshot.Put(rec)
	}

	if dropped > 0 {
		zap.L().Warn("merge: dropped records", zap.Int("count", dropped))
	}
	zap.L().Info("merge: snapshot built",
		zap.Int("records", snapshot.Len()),
		zap.Int("base", len(base)),
		zap.Int("kev", len(kev)),
		zap.Int("patchthis", len(patchthis)),
		zap.Strings("missing_feeds", set.Missing),
	)
	return snapshot
}

func (m *Merger) admit(id string) bool {
	if !model.ValidCVEID(id) {
		zap.L().Warn("merge: dropping malformed identifier", zap.String("cve", id))
		return false
	}
	year := model.CVEYear(id)
	return year >= m.MinYear && year <= m.MaxYear
}

// mergeOne resolves every field family for one identifier:
//   - descriptive fields and CVSS come from the base feed, with NVD
//     substituting any CVSS version the base feed lacks (evaluated
//     independently per version);
//   - counts come from NVD when available, else the base feed, never
//     summed across sources;
//   - KEV and PatchThis presence set their flags unconditionally.
func mergeOne(
	id string,
	base map[string]model.BaseRecord,
	kev map[string]model.KEVRecord,
	epss map[string]model.EPSSRecord,
	patchthis map[string]model.PatchThisRecord,
	nvd map[string]model.NVDRecord,
) model.CanonicalRecord {
	rec := model.CanonicalRecord{ID: id}

	b, hasBase := base[id]
	n, hasNVD := nvd[id]

	if hasBase {
		rec.Description = b.Description
		rec.Vendors = b.Vendors
		rec.Products = b.Products
		rec.CVSS.V3 = b.CVSS.V3
		rec.CVSS.V2 = b.CVSS.V2
	}
	if hasNVD {
		if rec.CVSS.V3 == nil {
			rec.CVSS.V3 = n.CVSS.V3
		}
		if rec.CVSS.V2 == nil {
			rec.CVSS.V2 = n.CVSS.V2
		}
		rec.WeaknessIDs = n.WeaknessIDs
	}

	switch {
	case hasNVD:
		rec.ReferenceCount = n.ReferenceCount
		rec.AffectedProductCount = n.AffectedProductCount
	case hasBase:
		rec.ReferenceCount = b.References
		rec.AffectedProductCount = b.Affected
	}

	if e, ok := epss[id]; ok {
		score := e.Score
		rec.ProbabilityScore = &score
	}

	if k, ok := kev[id]; ok {
		rec.ActiveThreat = true
		rec.KEV = &model.KEVDetails{
			DateAdded:      k.DateAdded,
			RequiredAction: k.RequiredAction,
			DueDate:        k.DueDate,
		}
	}

	if p, ok := patchthis[id]; ok {
		rec.InPatchThis = true
		rec.PriorityLabel = p.Label
	}

	return rec
}
