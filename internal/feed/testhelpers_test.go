package feed

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves canned payloads keyed by URL.
type stubFetcher struct {
	bodies map[string][]byte
}

func (s *stubFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	body, ok := s.bodies[url]
	if !ok {
		return nil, eris.Errorf("stub: no payload for %s", url)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *stubFetcher) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	body, err := s.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return io.Copy(out, body)
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}
