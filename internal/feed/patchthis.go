package feed

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/fetcher"
	"github.com/vulnradar/vulnradar/internal/model"
)

// PatchThis adapts the PatchThis CSV feed (cve,priority). The priority
// column is the feed's own tier label, e.g. CRITICAL or WARNING.
type PatchThis struct {
	Fetcher fetcher.Fetcher
	URL     string
}

func (p *PatchThis) Name() string { return "patchthis" }

func (p *PatchThis) Fetch(ctx context.Context, set *Set) error {
	body, err := p.Fetcher.Download(ctx, p.URL)
	if err != nil {
		return eris.Wrap(err, "patchthis: download")
	}
	defer body.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, body, fetcher.CSVOptions{
		HasHeader: true,
		TrimSpace: true,
	})

	var records []model.PatchThisRecord
	dropped := 0
	for row := range rowCh {
		if len(row) < 2 {
			dropped++
			continue
		}
		id := model.NormalizeCVEID(row[0])
		if !model.ValidCVEID(id) {
			dropped++
			continue
		}
		records = append(records, model.PatchThisRecord{
			ID:    id,
			Label: strings.ToUpper(row[1]),
		})
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "patchthis: stream csv")
	}

	if dropped > 0 {
		zap.L().Warn("patchthis: dropped malformed rows", zap.Int("count", dropped))
	}
	set.PatchThis = records
	return nil
}
