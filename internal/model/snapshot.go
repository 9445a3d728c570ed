package model

import (
	"sort"
	"time"
)

// Snapshot is the full set of canonical records produced by one run,
// stamped with the run time. Two snapshots exist during a run: the previous
// one loaded from the store and the current one being built; the current
// snapshot replaces the previous only after the run commits.
type Snapshot struct {
	RunAt   time.Time                  `json:"run_at"`
	Records map[string]CanonicalRecord `json:"records"`
}

// NewSnapshot creates an empty snapshot stamped with runAt.
func NewSnapshot(runAt time.Time) *Snapshot {
	return &Snapshot{
		RunAt:   runAt.UTC(),
		Records: make(map[string]CanonicalRecord),
	}
}

// Put stores a record keyed by its identifier.
func (s *Snapshot) Put(rec CanonicalRecord) {
	s.Records[rec.ID] = rec
}

// Get returns the record for id and whether it exists.
func (s *Snapshot) Get(id string) (CanonicalRecord, bool) {
	rec, ok := s.Records[id]
	return rec, ok
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// IDs returns all identifiers in ascending order. Every consumer that
// iterates a snapshot goes through this so output stays deterministic.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Records))
	for id := range s.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedRecords returns the records ordered by identifier.
func (s *Snapshot) SortedRecords() []CanonicalRecord {
	ids := s.IDs()
	recs := make([]CanonicalRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, s.Records[id])
	}
	return recs
}
