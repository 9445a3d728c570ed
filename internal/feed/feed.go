// Package feed implements the five source adapters and the parallel fetch
// that produces one Set of typed per-source records per run.
package feed

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vulnradar/vulnradar/internal/model"
)

// Set holds every source's records for one run. Each adapter fills only
// its own field, so concurrent fetches never write the same memory.
// Missing lists feeds that failed entirely; their fields stay empty and
// the merge degrades those contributions to absent.
type Set struct {
	Base      []model.BaseRecord
	KEV       []model.KEVRecord
	EPSS      []model.EPSSRecord
	PatchThis []model.PatchThisRecord
	NVD       []model.NVDRecord

	Missing []string
}

// Source is one upstream feed adapter.
type Source interface {
	// Name identifies the feed in logs and data-quality notes.
	Name() string

	// Fetch downloads and decodes the feed, storing its records into the
	// field of set that belongs to this source. It must not touch any
	// other field.
	Fetch(ctx context.Context, set *Set) error
}

// FetchAll runs every source concurrently with a bounded worker pool and
// waits for all of them — the merge needs every source's contribution
// before resolving a single field, so this is a full barrier, not a
// stream. A failed feed is logged and recorded in Missing rather than
// aborting the run; only zero usable feeds is an error.
func FetchAll(ctx context.Context, sources []Source) (*Set, error) {
	set := &Set{}

	var mu sync.Mutex // guards set.Missing only
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(len(sources))

	for _, src := range sources {
		g.Go(func() error {
			log := zap.L().With(zap.String("feed", src.Name()))
			log.Info("feed: fetching")

			if err := src.Fetch(gCtx, set); err != nil {
				log.Warn("feed: fetch failed, degrading to absent", zap.Error(err))
				mu.Lock()
				set.Missing = append(set.Missing, src.Name())
				mu.Unlock()
				return nil
			}

			log.Info("feed: fetched")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "feed: fetch all")
	}

	if len(set.Missing) == len(sources) {
		return nil, eris.New("feed: all feeds unavailable, refusing to produce an empty dataset")
	}

	return set, nil
}
