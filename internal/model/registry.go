package model

import (
	"sort"
	"time"
)

// IssueState tracks whether the external issue for an identifier is open.
// The state only records which handle to target; escalations fire
// regardless of it, and open/close transitions are left to humans.
type IssueState string

const (
	IssueOpen   IssueState = "OPEN"
	IssueClosed IssueState = "CLOSED"
)

// IssueEntry records the external issue opened for one identifier and the
// last time each change type was escalated on it. Entries are never
// deleted; closed issues keep their escalation history.
type IssueEntry struct {
	ID              string                   `json:"cve_id"`
	Handle          string                   `json:"issue_handle"`
	State           IssueState               `json:"state"`
	CreatedAt       time.Time                `json:"created_at"`
	LastEscalatedAt map[ChangeType]time.Time `json:"last_escalated_at,omitempty"`
}

// EscalatedWithin reports whether the given change type was escalated less
// than window ago.
func (e *IssueEntry) EscalatedWithin(t ChangeType, now time.Time, window time.Duration) bool {
	if e.LastEscalatedAt == nil {
		return false
	}
	last, ok := e.LastEscalatedAt[t]
	if !ok {
		return false
	}
	return now.Sub(last) < window
}

// MarkEscalated records an escalation of change type t at now.
func (e *IssueEntry) MarkEscalated(t ChangeType, now time.Time) {
	if e.LastEscalatedAt == nil {
		e.LastEscalatedAt = make(map[ChangeType]time.Time)
	}
	e.LastEscalatedAt[t] = now.UTC()
}

// IssueRegistry is the durable ledger of notifications sent, keyed by
// identifier. It, not the snapshot, is the source of truth for "already
// notified": it is persisted before the snapshot commit so a crash between
// the two cannot duplicate notifications.
type IssueRegistry struct {
	Entries map[string]IssueEntry `json:"entries"`
}

// NewIssueRegistry creates an empty registry.
func NewIssueRegistry() *IssueRegistry {
	return &IssueRegistry{Entries: make(map[string]IssueEntry)}
}

// Get returns the entry for id and whether it exists.
func (r *IssueRegistry) Get(id string) (IssueEntry, bool) {
	if r == nil || r.Entries == nil {
		return IssueEntry{}, false
	}
	e, ok := r.Entries[id]
	return e, ok
}

// Put stores an entry keyed by its identifier.
func (r *IssueRegistry) Put(e IssueEntry) {
	if r.Entries == nil {
		r.Entries = make(map[string]IssueEntry)
	}
	r.Entries[e.ID] = e
}

// Len returns the number of entries.
func (r *IssueRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Entries)
}

// IDs returns all entry identifiers in ascending order.
func (r *IssueRegistry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Entries))
	for id := range r.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy. The dispatcher mutates a clone and hands it
// back, so the registry loaded at run start is never modified in place.
func (r *IssueRegistry) Clone() *IssueRegistry {
	out := NewIssueRegistry()
	if r == nil {
		return out
	}
	for id, e := range r.Entries {
		if e.LastEscalatedAt != nil {
			m := make(map[ChangeType]time.Time, len(e.LastEscalatedAt))
			for t, ts := range e.LastEscalatedAt {
				m[t] = ts
			}
			e.LastEscalatedAt = m
		}
		out.Entries[id] = e
	}
	return out
}
