package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vulnradar/vulnradar/internal/model"
	"github.com/vulnradar/vulnradar/internal/resilience"
	"github.com/vulnradar/vulnradar/pkg/tracker"
)

// RegistrySink persists the issue registry. The dispatcher writes
// through after every transition: the registry, not the snapshot, is
// the source of truth for "already notified", so it must be durable
// before the snapshot commits.
type RegistrySink interface {
	SaveRegistry(ctx context.Context, registry *model.IssueRegistry) error
}

// Result summarizes one dispatch pass.
type Result struct {
	Created    int
	Escalated  int
	Suppressed int
	Failures   int
}

// Dispatcher drives the per-identifier notification state machine.
type Dispatcher struct {
	Tracker tracker.Client
	Sink    RegistrySink

	Cooldown        time.Duration
	MaxCreates      int
	IncludeWarnings bool
	Concurrency     int
	DryRun          bool

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch consumes the run's changes and returns an updated registry
// clone; the input registry is never mutated. Tracker calls for
// different identifiers run concurrently, but all registry mutation and
// durable writes happen under a single-writer lock. A tracker failure
// for one identifier is logged and counted, never aborts the rest; a
// registry write failure is fatal.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	changes []model.Change,
	current *model.Snapshot,
	registry *model.IssueRegistry,
) (*model.IssueRegistry, Result, error) {
	updated := registry.Clone()
	if err := d.reconcile(ctx, updated); err != nil {
		return nil, Result{}, err
	}
	byID := groupByID(changes)

	creations, escalations := d.plan(byID, current, updated)
	zap.L().Info("notify: dispatch planned",
		zap.Int("creations", len(creations)),
		zap.Int("escalations", len(escalations)),
	)

	var (
		mu     sync.Mutex // guards updated, result, and sink writes
		result Result
	)
	// commit applies a registry/result mutation and writes the registry
	// through to durable storage before releasing the lock.
	commit := func(fn func()) error {
		mu.Lock()
		defer mu.Unlock()
		fn()
		if d.DryRun {
			return nil
		}
		if err := d.Sink.SaveRegistry(ctx, updated); err != nil {
			return eris.Wrap(err, "persist registry")
		}
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	limit := d.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, id := range creations {
		rec, _ := current.Get(id)
		idChanges := byID[id]
		g.Go(func() error {
			return d.create(gCtx, rec, idChanges, updated, commit, &result)
		})
	}
	for _, id := range escalations {
		rec, _ := current.Get(id)
		idChanges := byID[id]
		g.Go(func() error {
			return d.escalate(gCtx, rec, idChanges, updated, &mu, commit, &result)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, result, eris.Wrap(err, "notify: dispatch")
	}

	zap.L().Info("notify: dispatch complete",
		zap.Int("created", result.Created),
		zap.Int("escalated", result.Escalated),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("failures", result.Failures),
	)
	return updated, result, nil
}

// reconcile adopts open alert issues the registry does not know about,
// so identifiers lost from the registry (restored backup, crash before a
// first save) escalate on the existing issue instead of creating a
// duplicate. A listing failure degrades to trusting the registry alone.
func (d *Dispatcher) reconcile(ctx context.Context, registry *model.IssueRegistry) error {
	if d.DryRun {
		return nil
	}

	open, err := d.Tracker.ListOpenAlerts(ctx)
	if err != nil {
		zap.L().Warn("notify: open-issue listing failed, trusting registry alone", zap.Error(err))
		return nil
	}

	adopted := 0
	for id, handle := range open {
		if _, ok := registry.Get(id); ok {
			continue
		}
		registry.Put(model.IssueEntry{
			ID:        id,
			Handle:    handle,
			State:     model.IssueOpen,
			CreatedAt: d.now(),
		})
		adopted++
	}
	if adopted == 0 {
		return nil
	}

	zap.L().Info("notify: adopted open issues missing from registry", zap.Int("count", adopted))
	if err := d.Sink.SaveRegistry(ctx, registry); err != nil {
		return eris.Wrap(err, "notify: persist adopted registry")
	}
	return nil
}

// plan splits this run's changed identifiers into issue creations and
// escalations. Creations are capped per run, highest-priority first, so
// a first run against a deep backlog cannot flood the tracker.
func (d *Dispatcher) plan(
	byID map[string][]model.Change,
	current *model.Snapshot,
	registry *model.IssueRegistry,
) (creations, escalations []string) {
	for id, idChanges := range byID {
		rec, ok := current.Get(id)
		if !ok {
			continue
		}
		if _, tracked := registry.Get(id); tracked {
			if hasEscalation(idChanges) {
				escalations = append(escalations, id)
			}
			continue
		}
		if rec.IsCritical || (d.IncludeWarnings && rec.IsWarning) {
			creations = append(creations, id)
		}
	}

	sort.Slice(creations, func(i, j int) bool {
		a, _ := current.Get(creations[i])
		b, _ := current.Get(creations[j])
		if c := compareRecords(&a, &b); c != 0 {
			return c > 0
		}
		return creations[i] < creations[j]
	})
	if d.MaxCreates > 0 && len(creations) > d.MaxCreates {
		zap.L().Warn("notify: creation cap reached, deferring remainder",
			zap.Int("cap", d.MaxCreates),
			zap.Int("deferred", len(creations)-d.MaxCreates),
		)
		creations = creations[:d.MaxCreates]
	}
	sort.Strings(escalations)
	return creations, escalations
}

func (d *Dispatcher) create(
	ctx context.Context,
	rec model.CanonicalRecord,
	changes []model.Change,
	registry *model.IssueRegistry,
	commit func(func()) error,
	result *Result,
) error {
	log := zap.L().With(zap.String("cve", rec.ID))
	title := IssueTitle(&rec)

	if d.DryRun {
		log.Info("notify: dry run, would create issue", zap.String("title", title))
		return commit(func() { result.Created++ })
	}

	handle, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig("tracker create"), func(ctx context.Context) (string, error) {
		return d.Tracker.CreateIssue(ctx, title, IssueBody(&rec), IssueLabels(&rec))
	})
	if err != nil {
		log.Error("notify: issue creation failed", zap.Error(err))
		return commit(func() { result.Failures++ })
	}

	now := d.now()
	entry := model.IssueEntry{
		ID:        rec.ID,
		Handle:    handle,
		State:     model.IssueOpen,
		CreatedAt: now,
	}
	// The issue body already reflects this run's signals; mark the
	// escalation-worthy changes as announced so they do not immediately
	// re-fire as comments.
	for _, c := range changes {
		if c.Type.Escalates() {
			entry.MarkEscalated(c.Type, now)
		}
	}

	log.Info("notify: issue created", zap.String("handle", handle))
	return commit(func() {
		result.Created++
		registry.Put(entry)
	})
}

func (d *Dispatcher) escalate(
	ctx context.Context,
	rec model.CanonicalRecord,
	changes []model.Change,
	registry *model.IssueRegistry,
	mu *sync.Mutex,
	commit func(func()) error,
	result *Result,
) error {
	log := zap.L().With(zap.String("cve", rec.ID))

	for _, change := range changes {
		if !change.Type.Escalates() {
			continue
		}

		now := d.now()
		mu.Lock()
		entry, ok := registry.Get(rec.ID)
		mu.Unlock()
		if !ok {
			continue
		}
		if entry.EscalatedWithin(change.Type, now, d.Cooldown) {
			log.Info("notify: escalation suppressed by cooldown",
				zap.String("change", string(change.Type)))
			// Suppression mutates nothing; no durable write needed.
			mu.Lock()
			result.Suppressed++
			mu.Unlock()
			continue
		}

		if d.DryRun {
			log.Info("notify: dry run, would comment",
				zap.String("handle", entry.Handle),
				zap.String("change", string(change.Type)))
			if err := commit(func() { result.Escalated++ }); err != nil {
				return err
			}
			continue
		}

		err := resilience.Do(ctx, resilience.DefaultRetryConfig("tracker comment"), func(ctx context.Context) error {
			return d.Tracker.CommentIssue(ctx, entry.Handle, EscalationComment(change, &rec))
		})
		if err != nil {
			log.Error("notify: escalation comment failed",
				zap.String("change", string(change.Type)), zap.Error(err))
			if err := commit(func() { result.Failures++ }); err != nil {
				return err
			}
			continue
		}

		log.Info("notify: escalated", zap.String("change", string(change.Type)))
		if err := commit(func() {
			result.Escalated++
			latest, _ := registry.Get(rec.ID)
			latest.MarkEscalated(change.Type, now)
			registry.Put(latest)
		}); err != nil {
			return err
		}
	}
	return nil
}

func hasEscalation(changes []model.Change) bool {
	for _, c := range changes {
		if c.Type.Escalates() {
			return true
		}
	}
	return false
}

func groupByID(changes []model.Change) map[string][]model.Change {
	byID := make(map[string][]model.Change)
	for _, c := range changes {
		byID[c.ID] = append(byID[c.ID], c)
	}
	return byID
}

// compareRecords orders creation candidates: critical first, then
// confirmed exploitation, then the warning tier, then by probability
// and CVSS.
func compareRecords(a, b *model.CanonicalRecord) int {
	if c := compareBool(a.IsCritical, b.IsCritical); c != 0 {
		return c
	}
	if c := compareBool(a.ActiveThreat, b.ActiveThreat); c != 0 {
		return c
	}
	if c := compareBool(a.IsWarning, b.IsWarning); c != 0 {
		return c
	}
	if a.Probability() != b.Probability() {
		if a.Probability() > b.Probability() {
			return 1
		}
		return -1
	}
	if a.BestCVSSScore() != b.BestCVSSScore() {
		if a.BestCVSSScore() > b.BestCVSSScore() {
			return 1
		}
		return -1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
