package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/config"
	"github.com/vulnradar/vulnradar/internal/feed"
	"github.com/vulnradar/vulnradar/internal/metrics"
	"github.com/vulnradar/vulnradar/internal/model"
	"github.com/vulnradar/vulnradar/internal/monitoring"
	"github.com/vulnradar/vulnradar/internal/notify"
	"github.com/vulnradar/vulnradar/internal/store"
)

// Pipeline orchestrates one radar run: fetch, merge, classify, diff,
// notify, commit. It is a pure function of (feeds, previous state) to
// (outputs, new state); the previous snapshot and registry are loaded
// at start and never mutated in place.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	sources    []feed.Source
	watchlist  *Watchlist
	dispatcher *notify.Dispatcher
	reporter   *Reporter
	slack      *notify.SlackNotifier
	alerter    *monitoring.Alerter
	metrics    *metrics.Metrics

	// DryRun leaves the store untouched: the dispatcher logs instead of
	// calling the tracker, and the snapshot is not committed.
	DryRun bool
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	sources []feed.Source,
	watchlist *Watchlist,
	dispatcher *notify.Dispatcher,
	reporter *Reporter,
	slack *notify.SlackNotifier,
	alerter *monitoring.Alerter,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		sources:    sources,
		watchlist:  watchlist,
		dispatcher: dispatcher,
		reporter:   reporter,
		slack:      slack,
		alerter:    alerter,
		metrics:    m,
	}
}

// Run executes the full radar pipeline once.
func (p *Pipeline) Run(ctx context.Context) (*model.RunStats, error) {
	start := time.Now()
	log := zap.L()
	log.Info("pipeline: starting run")

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	stats, err := p.run(ctx, run.ID)
	if err != nil {
		log.Error("pipeline: run failed", zap.Error(err))
		if stats == nil {
			stats = &model.RunStats{}
		}
		if completeErr := p.store.CompleteRun(ctx, run.ID, stats, err.Error()); completeErr != nil {
			log.Error("pipeline: failed to record run failure", zap.Error(completeErr))
		}
		if p.metrics != nil {
			p.metrics.RunsTotal.WithLabelValues(string(model.RunStatusFailed)).Inc()
		}
		return stats, err
	}

	if err := p.store.CompleteRun(ctx, run.ID, stats, ""); err != nil {
		return stats, eris.Wrap(err, "pipeline: complete run")
	}

	if p.metrics != nil {
		p.metrics.RunsTotal.WithLabelValues(string(model.RunStatusComplete)).Inc()
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}

	log.Info("pipeline: run complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("records", stats.RecordsMerged),
		zap.Int("changes", stats.Changes),
		zap.Int("created", stats.IssuesCreated),
	)
	return stats, nil
}

func (p *Pipeline) run(ctx context.Context, runID string) (*model.RunStats, error) {
	setStatus := func(status model.RunStatus) {
		if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
			zap.L().Warn("pipeline: failed to update status", zap.Error(err))
		}
	}

	// Previous state. An empty store yields an empty snapshot and
	// registry, which is the first-run case, not an error.
	previous, err := p.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load previous snapshot")
	}
	registry, err := p.store.LoadRegistry(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load registry")
	}

	// Fetch. Full barrier: the merge needs every feed's contribution
	// before resolving a single field.
	setStatus(model.RunStatusFetching)
	var set *feed.Set
	err = p.trackPhase(ctx, runID, "fetch", func() error {
		var fetchErr error
		set, fetchErr = feed.FetchAll(ctx, p.sources)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		for _, name := range set.Missing {
			p.metrics.FeedFetchErrors.WithLabelValues(name).Inc()
		}
	}

	// Merge and classify.
	setStatus(model.RunStatusMerging)
	var current *model.Snapshot
	err = p.trackPhase(ctx, runID, "merge", func() error {
		merger := &Merger{MinYear: p.cfg.Scan.MinYear, MaxYear: p.cfg.Scan.MaxYear}
		current = merger.Merge(set, time.Now())
		Classify(current, p.watchlist)
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := &model.RunStats{
		RecordsMerged: current.Len(),
		FeedsFailed:   set.Missing,
	}
	for _, rec := range current.Records {
		if rec.IsRelevant {
			stats.Relevant++
		}
		if rec.IsCritical {
			stats.Critical++
		}
		if rec.IsWarning {
			stats.Warning++
		}
	}

	// Diff.
	setStatus(model.RunStatusDiffing)
	var changes []model.Change
	err = p.trackPhase(ctx, runID, "diff", func() error {
		detector := &Detector{EPSSThreshold: p.cfg.Scan.EPSSThreshold}
		changes = detector.Diff(previous, current, time.Now())
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.Changes = len(changes)
	if p.metrics != nil {
		for _, c := range changes {
			p.metrics.ChangesDetected.WithLabelValues(string(c.Type)).Inc()
		}
	}

	// Notify. The dispatcher persists the registry after every
	// transition, so it is durable before the snapshot commit below.
	setStatus(model.RunStatusNotifying)
	err = p.trackPhase(ctx, runID, "notify", func() error {
		updated, result, dispatchErr := p.dispatcher.Dispatch(ctx, changes, current, registry)
		if dispatchErr != nil {
			return dispatchErr
		}
		registry = updated
		stats.IssuesCreated = result.Created
		stats.Escalations = result.Escalated
		stats.Suppressed = result.Suppressed
		stats.NotifyFailures = result.Failures
		return nil
	})
	if err != nil {
		return stats, err
	}

	// Commit. Registry first (already durable), then snapshot, then the
	// report files. A crash before SaveSnapshot re-detects the same
	// changes next run, and the registry suppresses the duplicates.
	setStatus(model.RunStatusCommitting)
	err = p.trackPhase(ctx, runID, "commit", func() error {
		if p.DryRun {
			zap.L().Info("pipeline: dry run, snapshot not committed")
		} else if err := p.store.SaveSnapshot(ctx, current); err != nil {
			return eris.Wrap(err, "save snapshot")
		}
		if p.reporter != nil {
			if err := p.reporter.WriteData(current, set.Missing); err != nil {
				return err
			}
			if err := p.reporter.WriteReport(current, changes, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if p.metrics != nil {
		p.metrics.RecordsMerged.Set(float64(stats.RecordsMerged))
		p.metrics.RelevantRecords.Set(float64(stats.Relevant))
		p.metrics.CriticalRecords.Set(float64(stats.Critical))
		p.metrics.IssuesCreated.Add(float64(stats.IssuesCreated))
		p.metrics.Escalations.Add(float64(stats.Escalations))
		p.metrics.SuppressedEvents.Add(float64(stats.Suppressed))
		p.metrics.NotifyFailures.Add(float64(stats.NotifyFailures))
	}

	// End-of-run surfaces are best effort.
	if p.slack != nil {
		if err := p.slack.PostRunSummary(ctx, *stats, set.Missing); err != nil {
			zap.L().Warn("pipeline: slack summary failed", zap.Error(err))
		}
	}
	if p.alerter != nil {
		p.alerter.SendAlerts(ctx, p.alerter.Evaluate(stats))
	}

	return stats, nil
}

func (p *Pipeline) trackPhase(ctx context.Context, runID, name string, fn func() error) error {
	phase, err := p.store.CreatePhase(ctx, runID, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
	}

	start := time.Now()
	fnErr := fn()
	duration := time.Since(start).Milliseconds()

	status := model.PhaseStatusComplete
	errMsg := ""
	if fnErr != nil {
		status = model.PhaseStatusFailed
		errMsg = fnErr.Error()
	}

	if phase != nil {
		if completeErr := p.store.CompletePhase(ctx, phase.ID, status, duration, errMsg); completeErr != nil {
			zap.L().Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(completeErr))
		}
	}

	if fnErr != nil {
		return eris.Wrapf(fnErr, "pipeline: phase %s", name)
	}
	zap.L().Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", duration))
	return nil
}
