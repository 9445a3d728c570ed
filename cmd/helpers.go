package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vulnradar/vulnradar/internal/feed"
	"github.com/vulnradar/vulnradar/internal/fetcher"
	"github.com/vulnradar/vulnradar/internal/notify"
	"github.com/vulnradar/vulnradar/internal/pipeline"
	"github.com/vulnradar/vulnradar/internal/store"
	"github.com/vulnradar/vulnradar/pkg/tracker"
)

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildSources wires the five feed adapters to the shared HTTP fetcher.
func buildSources() []feed.Source {
	httpFetcher := fetcher.NewHTTP(fetcher.HTTPOptions{
		Timeout: time.Duration(cfg.Feeds.TimeoutSecs) * time.Second,
	})

	return []feed.Source{
		&feed.CVEList{
			Fetcher: httpFetcher,
			URL:     cfg.Feeds.CVEListURL,
			TempDir: cfg.Feeds.TempDir,
			MinYear: cfg.Scan.MinYear,
			MaxYear: cfg.Scan.MaxYear,
		},
		&feed.KEV{Fetcher: httpFetcher, URL: cfg.Feeds.KEVURL},
		&feed.EPSS{Fetcher: httpFetcher, URL: cfg.Feeds.EPSSURL},
		&feed.PatchThis{Fetcher: httpFetcher, URL: cfg.Feeds.PatchThisURL},
		&feed.NVD{
			Fetcher:   httpFetcher,
			URLFormat: cfg.Feeds.NVDURLFormat,
			MinYear:   cfg.Scan.MinYear,
			MaxYear:   cfg.Scan.MaxYear,
		},
	}
}

// buildDispatcher wires the notification dispatcher against the tracker
// and the store's registry sink.
func buildDispatcher(st store.Store, dryRun bool) *notify.Dispatcher {
	return &notify.Dispatcher{
		Tracker:         tracker.NewClient(cfg.Tracker.Token, cfg.Tracker.Repo),
		Sink:            st,
		Cooldown:        cfg.Notify.Cooldown(),
		MaxCreates:      cfg.Notify.MaxIssuesPerRun,
		IncludeWarnings: cfg.Notify.IncludeWarnings,
		Concurrency:     cfg.Notify.Concurrency,
		DryRun:          dryRun,
	}
}

func buildReporter() *pipeline.Reporter {
	return &pipeline.Reporter{
		Dir:        cfg.Output.Dir,
		DataFile:   cfg.Output.DataFile,
		ReportFile: cfg.Output.ReportFile,
	}
}
