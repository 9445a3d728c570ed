package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/fetcher"
	"github.com/vulnradar/vulnradar/internal/model"
)

// nvdItem mirrors the parts of an NVD 1.1 CVE item this adapter projects.
type nvdItem struct {
	CVE struct {
		CVEDataMeta struct {
			ID string `json:"ID"`
		} `json:"CVE_data_meta"`
		ProblemType struct {
			ProblemTypeData []struct {
				Description []struct {
					Value string `json:"value"`
				} `json:"description"`
			} `json:"problemtype_data"`
		} `json:"problemtype"`
		References struct {
			ReferenceData []struct {
				URL string `json:"url"`
			} `json:"reference_data"`
		} `json:"references"`
	} `json:"cve"`
	Impact struct {
		BaseMetricV3 *struct {
			CVSSV3 struct {
				BaseScore    float64 `json:"baseScore"`
				BaseSeverity string  `json:"baseSeverity"`
				VectorString string  `json:"vectorString"`
			} `json:"cvssV3"`
		} `json:"baseMetricV3"`
		BaseMetricV2 *struct {
			CVSSV2 struct {
				BaseScore    float64 `json:"baseScore"`
				VectorString string  `json:"vectorString"`
			} `json:"cvssV2"`
			Severity string `json:"severity"`
		} `json:"baseMetricV2"`
	} `json:"impact"`
	Configurations struct {
		Nodes []nvdNode `json:"nodes"`
	} `json:"configurations"`
}

type nvdNode struct {
	CPEMatch []struct {
		Vulnerable bool `json:"vulnerable"`
	} `json:"cpe_match"`
	Children []nvdNode `json:"children"`
}

func (n nvdNode) vulnerableCount() int {
	count := 0
	for _, m := range n.CPEMatch {
		if m.Vulnerable {
			count++
		}
	}
	for _, child := range n.Children {
		count += child.vulnerableCount()
	}
	return count
}

// NVD adapts the gzipped yearly NVD JSON feeds, one file per year of the
// scan window.
type NVD struct {
	Fetcher   fetcher.Fetcher
	URLFormat string // e.g. "https://nvd.nist.gov/feeds/json/cve/1.1/nvdcve-1.1-%d.json.gz"
	MinYear   int
	MaxYear   int
}

func (n *NVD) Name() string { return "nvd" }

func (n *NVD) Fetch(ctx context.Context, set *Set) error {
	var records []model.NVDRecord
	for year := n.MinYear; year <= n.MaxYear; year++ {
		yearRecords, err := n.fetchYear(ctx, year)
		if err != nil {
			return eris.Wrapf(err, "nvd: year %d", year)
		}
		records = append(records, yearRecords...)
	}
	set.NVD = records
	return nil
}

func (n *NVD) fetchYear(ctx context.Context, year int) ([]model.NVDRecord, error) {
	body, err := n.Fetcher.Download(ctx, fmt.Sprintf(n.URLFormat, year))
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	gz, err := fetcher.Gunzip(body)
	if err != nil {
		return nil, eris.Wrap(err, "decompress")
	}
	defer gz.Close() //nolint:errcheck

	return decodeNVDItems(ctx, gz)
}

// decodeNVDItems token-walks the feed document to the CVE_Items array and
// streams its elements, so a full year's feed never sits in memory at once.
func decodeNVDItems(ctx context.Context, r io.Reader) ([]model.NVDRecord, error) {
	decoder := json.NewDecoder(r)

	// Seek to the CVE_Items key at the top level of the document.
	depth := 0
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, eris.Wrap(err, "seek CVE_Items")
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
			continue
		}
		if key, ok := tok.(string); ok && depth == 1 && key == "CVE_Items" {
			break
		}
	}

	tok, err := decoder.Token()
	if err != nil {
		return nil, eris.Wrap(err, "read CVE_Items opening")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("CVE_Items is not an array, got %v", tok)
	}

	var records []model.NVDRecord
	dropped := 0
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "context cancelled")
		}

		var item nvdItem
		if err := decoder.Decode(&item); err != nil {
			return nil, eris.Wrap(err, "decode item")
		}

		rec, ok := projectNVDItem(item)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}

	if dropped > 0 {
		zap.L().Warn("nvd: dropped malformed items", zap.Int("count", dropped))
	}
	return records, nil
}

func projectNVDItem(item nvdItem) (model.NVDRecord, bool) {
	id := model.NormalizeCVEID(item.CVE.CVEDataMeta.ID)
	if !model.ValidCVEID(id) {
		return model.NVDRecord{}, false
	}

	rec := model.NVDRecord{
		ID:             id,
		ReferenceCount: len(item.CVE.References.ReferenceData),
	}

	weaknesses := map[string]struct{}{}
	for _, pt := range item.CVE.ProblemType.ProblemTypeData {
		for _, d := range pt.Description {
			// NVD uses NVD-CWE-* placeholders for unclassified entries.
			if d.Value != "" && d.Value != "NVD-CWE-noinfo" && d.Value != "NVD-CWE-Other" {
				weaknesses[d.Value] = struct{}{}
			}
		}
	}
	for w := range weaknesses {
		rec.WeaknessIDs = append(rec.WeaknessIDs, w)
	}
	sort.Strings(rec.WeaknessIDs)

	if m := item.Impact.BaseMetricV3; m != nil {
		rec.CVSS.V3 = &model.CVSSMetric{
			Score:    m.CVSSV3.BaseScore,
			Severity: m.CVSSV3.BaseSeverity,
			Vector:   m.CVSSV3.VectorString,
		}
	}
	if m := item.Impact.BaseMetricV2; m != nil {
		rec.CVSS.V2 = &model.CVSSMetric{
			Score:    m.CVSSV2.BaseScore,
			Severity: m.Severity,
			Vector:   m.CVSSV2.VectorString,
		}
	}

	for _, node := range item.Configurations.Nodes {
		rec.AffectedProductCount += node.vulnerableCount()
	}

	return rec, true
}
