package model

// CVSSMetric holds one CVSS version's base metrics.
type CVSSMetric struct {
	Score    float64 `json:"score"`
	Severity string  `json:"severity,omitempty"`
	Vector   string  `json:"vector,omitempty"`
}

// CVSS groups the optional per-version metrics of a record. A nil version
// means that source supplied no score for it.
type CVSS struct {
	V3 *CVSSMetric `json:"v3,omitempty"`
	V2 *CVSSMetric `json:"v2,omitempty"`
}

// BaseRecord is the projection of one CVE-List entry. The base feed is the
// primary source for description, affected vendors/products, and CVSS.
type BaseRecord struct {
	ID          string
	Description string
	Vendors     []string
	Products    []string
	CVSS        CVSS
	References  int // number of reference listings in the base entry
	Affected    int // number of affected-product entries in the base entry
}

// KEVRecord is the projection of one CISA KEV catalog entry.
type KEVRecord struct {
	ID             string
	VendorProject  string
	Product        string
	DateAdded      string
	RequiredAction string
	DueDate        string
}

// EPSSRecord is one row of the EPSS scores feed.
type EPSSRecord struct {
	ID         string
	Score      float64 // exploit probability in [0,1]
	Percentile float64
}

// PatchThisRecord is one row of the PatchThis feed.
type PatchThisRecord struct {
	ID    string
	Label string // feed-native priority tier, e.g. "CRITICAL" or "WARNING"
}

// NVDRecord is the projection of one NVD yearly-feed entry. NVD backfills
// CVSS when the base feed has none and is authoritative for weakness ids
// and the counting fields.
type NVDRecord struct {
	ID                   string
	CVSS                 CVSS
	WeaknessIDs          []string
	ReferenceCount       int
	AffectedProductCount int
}
