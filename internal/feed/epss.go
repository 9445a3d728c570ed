package feed

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/fetcher"
	"github.com/vulnradar/vulnradar/internal/model"
)

// EPSS adapts the gzipped EPSS scores CSV (cve,epss,percentile with a
// leading #model_version comment line).
type EPSS struct {
	Fetcher fetcher.Fetcher
	URL     string
}

func (e *EPSS) Name() string { return "epss" }

func (e *EPSS) Fetch(ctx context.Context, set *Set) error {
	body, err := e.Fetcher.Download(ctx, e.URL)
	if err != nil {
		return eris.Wrap(err, "epss: download")
	}

	gz, err := fetcher.Gunzip(body)
	if err != nil {
		return eris.Wrap(err, "epss: decompress")
	}
	defer gz.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, gz, fetcher.CSVOptions{
		HasHeader: true,
		Comment:   '#',
		TrimSpace: true,
	})

	var records []model.EPSSRecord
	dropped := 0
	for row := range rowCh {
		rec, ok := parseEPSSRow(row)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "epss: stream csv")
	}

	if dropped > 0 {
		zap.L().Warn("epss: dropped malformed rows", zap.Int("count", dropped))
	}
	set.EPSS = records
	return nil
}

func parseEPSSRow(row []string) (model.EPSSRecord, bool) {
	if len(row) < 2 {
		return model.EPSSRecord{}, false
	}
	id := model.NormalizeCVEID(row[0])
	if !model.ValidCVEID(id) {
		return model.EPSSRecord{}, false
	}
	score, err := strconv.ParseFloat(row[1], 64)
	if err != nil || score < 0 || score > 1 {
		return model.EPSSRecord{}, false
	}
	rec := model.EPSSRecord{ID: id, Score: score}
	if len(row) >= 3 {
		if pct, err := strconv.ParseFloat(row[2], 64); err == nil {
			rec.Percentile = pct
		}
	}
	return rec, true
}
