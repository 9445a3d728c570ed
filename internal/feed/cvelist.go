package feed

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/fetcher"
	"github.com/vulnradar/vulnradar/internal/model"
)

// cvelistRecord mirrors the parts of a cvelistV5 record this adapter
// projects.
type cvelistRecord struct {
	CVEMetadata struct {
		CVEID string `json:"cveId"`
		State string `json:"state"`
	} `json:"cveMetadata"`
	Containers struct {
		CNA struct {
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Affected []struct {
				Vendor  string `json:"vendor"`
				Product string `json:"product"`
			} `json:"affected"`
			Metrics []struct {
				CVSSV31 *cvelistCVSS `json:"cvssV3_1"`
				CVSSV30 *cvelistCVSS `json:"cvssV3_0"`
				CVSSV20 *cvelistCVSS `json:"cvssV2_0"`
			} `json:"metrics"`
			References []struct {
				URL string `json:"url"`
			} `json:"references"`
		} `json:"cna"`
	} `json:"containers"`
}

type cvelistCVSS struct {
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
	VectorString string  `json:"vectorString"`
}

// CVEList adapts the CVE-List zipped JSON release: one JSON record per
// identifier inside the archive.
type CVEList struct {
	Fetcher fetcher.Fetcher
	URL     string
	TempDir string
	MinYear int
	MaxYear int
}

func (c *CVEList) Name() string { return "cvelist" }

func (c *CVEList) Fetch(ctx context.Context, set *Set) error {
	archive := filepath.Join(c.TempDir, "cvelist.zip")
	if _, err := c.Fetcher.DownloadToFile(ctx, c.URL, archive); err != nil {
		return eris.Wrap(err, "cvelist: download")
	}

	var records []model.BaseRecord
	dropped := 0
	err := fetcher.WalkZIP(archive, ".json", func(name string, r io.Reader) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var raw cvelistRecord
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			dropped++
			zap.L().Warn("cvelist: dropping undecodable entry", zap.String("entry", name), zap.Error(err))
			return nil
		}

		rec, ok := c.project(raw)
		if !ok {
			dropped++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "cvelist: walk archive")
	}

	if dropped > 0 {
		zap.L().Warn("cvelist: dropped entries", zap.Int("count", dropped))
	}
	set.Base = records
	return nil
}

// project converts a raw record to a BaseRecord, filtering rejected
// records and identifiers outside the scan window.
func (c *CVEList) project(raw cvelistRecord) (model.BaseRecord, bool) {
	id := model.NormalizeCVEID(raw.CVEMetadata.CVEID)
	if !model.ValidCVEID(id) {
		return model.BaseRecord{}, false
	}
	if year := model.CVEYear(id); year < c.MinYear || year > c.MaxYear {
		return model.BaseRecord{}, false
	}
	if raw.CVEMetadata.State == "REJECTED" {
		return model.BaseRecord{}, false
	}

	cna := raw.Containers.CNA
	rec := model.BaseRecord{
		ID:         id,
		References: len(cna.References),
		Affected:   len(cna.Affected),
	}

	for _, d := range cna.Descriptions {
		if d.Lang == "en" || rec.Description == "" {
			rec.Description = d.Value
		}
		if d.Lang == "en" {
			break
		}
	}

	vendors := map[string]struct{}{}
	products := map[string]struct{}{}
	for _, a := range cna.Affected {
		if a.Vendor != "" && a.Vendor != "n/a" {
			vendors[a.Vendor] = struct{}{}
		}
		if a.Product != "" && a.Product != "n/a" {
			products[a.Product] = struct{}{}
		}
	}
	rec.Vendors = sortedKeys(vendors)
	rec.Products = sortedKeys(products)

	for _, m := range cna.Metrics {
		v3 := m.CVSSV31
		if v3 == nil {
			v3 = m.CVSSV30
		}
		if v3 != nil && rec.CVSS.V3 == nil {
			rec.CVSS.V3 = &model.CVSSMetric{Score: v3.BaseScore, Severity: v3.BaseSeverity, Vector: v3.VectorString}
		}
		if m.CVSSV20 != nil && rec.CVSS.V2 == nil {
			rec.CVSS.V2 = &model.CVSSMetric{
				Score:    m.CVSSV20.BaseScore,
				Severity: severityFromScore(m.CVSSV20.BaseScore),
				Vector:   m.CVSSV20.VectorString,
			}
		}
	}

	return rec, true
}

// severityFromScore maps a CVSS v2 base score to the NVD severity tiers.
// The v2 metric carries no severity of its own.
func severityFromScore(score float64) string {
	switch {
	case score >= 7.0:
		return "HIGH"
	case score >= 4.0:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
