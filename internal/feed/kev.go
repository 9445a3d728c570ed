package feed

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/fetcher"
	"github.com/vulnradar/vulnradar/internal/model"
)

// kevCatalog mirrors the CISA KEV catalog JSON document.
type kevCatalog struct {
	CatalogVersion  string     `json:"catalogVersion"`
	Count           int        `json:"count"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

type kevEntry struct {
	CVEID          string `json:"cveID"`
	VendorProject  string `json:"vendorProject"`
	Product        string `json:"product"`
	DateAdded      string `json:"dateAdded"`
	RequiredAction string `json:"requiredAction"`
	DueDate        string `json:"dueDate"`
}

// KEV adapts the CISA Known Exploited Vulnerabilities catalog.
type KEV struct {
	Fetcher fetcher.Fetcher
	URL     string
}

func (k *KEV) Name() string { return "kev" }

func (k *KEV) Fetch(ctx context.Context, set *Set) error {
	body, err := k.Fetcher.Download(ctx, k.URL)
	if err != nil {
		return eris.Wrap(err, "kev: download")
	}
	defer body.Close() //nolint:errcheck

	var catalog kevCatalog
	if err := json.NewDecoder(body).Decode(&catalog); err != nil {
		return eris.Wrap(err, "kev: decode catalog")
	}

	records := make([]model.KEVRecord, 0, len(catalog.Vulnerabilities))
	dropped := 0
	for _, e := range catalog.Vulnerabilities {
		id := model.NormalizeCVEID(e.CVEID)
		if !model.ValidCVEID(id) {
			dropped++
			continue
		}
		records = append(records, model.KEVRecord{
			ID:             id,
			VendorProject:  e.VendorProject,
			Product:        e.Product,
			DateAdded:      e.DateAdded,
			RequiredAction: e.RequiredAction,
			DueDate:        e.DueDate,
		})
	}

	if dropped > 0 {
		zap.L().Warn("kev: dropped malformed entries", zap.Int("count", dropped))
	}
	zap.L().Debug("kev: catalog decoded",
		zap.String("version", catalog.CatalogVersion),
		zap.Int("entries", len(records)),
	)

	set.KEV = records
	return nil
}
