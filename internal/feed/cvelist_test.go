package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipEntries(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestCVEListFetch(t *testing.T) {
	published := `{
	  "cveMetadata": {"cveId": "CVE-2024-0001", "state": "PUBLISHED"},
	  "containers": {"cna": {
	    "descriptions": [
	      {"lang": "de", "value": "Pufferueberlauf"},
	      {"lang": "en", "value": "Buffer overflow in the request parser."}
	    ],
	    "affected": [
	      {"vendor": "Apache", "product": "HTTP Server"},
	      {"vendor": "n/a", "product": "n/a"}
	    ],
	    "metrics": [
	      {"cvssV3_1": {"baseScore": 9.8, "baseSeverity": "CRITICAL", "vectorString": "CVSS:3.1/AV:N"}},
	      {"cvssV2_0": {"baseScore": 7.5, "vectorString": "AV:N/AC:L"}}
	    ],
	    "references": [{"url": "https://a"}, {"url": "https://b"}]
	  }}
	}`
	rejected := `{"cveMetadata": {"cveId": "CVE-2024-0002", "state": "REJECTED"}}`
	tooOld := `{"cveMetadata": {"cveId": "CVE-2010-1234", "state": "PUBLISHED"}}`

	archive := zipEntries(t, map[string]string{
		"cves/2024/0xxx/CVE-2024-0001.json": published,
		"cves/2024/0xxx/CVE-2024-0002.json": rejected,
		"cves/2010/1xxx/CVE-2010-1234.json": tooOld,
		"cves/README.md":                    "not json",
	})

	stub := &stubFetcher{bodies: map[string][]byte{
		"https://cvelist.example/main.zip": archive,
	}}

	src := &CVEList{
		Fetcher: stub,
		URL:     "https://cvelist.example/main.zip",
		TempDir: t.TempDir(),
		MinYear: 2022,
		MaxYear: 2026,
	}
	assert.Equal(t, "cvelist", src.Name())

	var set Set
	require.NoError(t, src.Fetch(context.Background(), &set))

	require.Len(t, set.Base, 1)
	rec := set.Base[0]
	assert.Equal(t, "CVE-2024-0001", rec.ID)
	// English description wins over the first-listed one.
	assert.Equal(t, "Buffer overflow in the request parser.", rec.Description)
	assert.Equal(t, []string{"Apache"}, rec.Vendors)
	assert.Equal(t, []string{"HTTP Server"}, rec.Products)
	assert.Equal(t, 2, rec.References)
	assert.Equal(t, 2, rec.Affected)
	require.NotNil(t, rec.CVSS.V3)
	assert.Equal(t, 9.8, rec.CVSS.V3.Score)
	require.NotNil(t, rec.CVSS.V2)
	assert.Equal(t, "HIGH", rec.CVSS.V2.Severity)
}

func TestSeverityFromScore(t *testing.T) {
	assert.Equal(t, "HIGH", severityFromScore(7.0))
	assert.Equal(t, "MEDIUM", severityFromScore(4.0))
	assert.Equal(t, "LOW", severityFromScore(3.9))
}
