package fetcher

import (
	"compress/gzip"
	"io"

	"github.com/rotisserie/eris"
)

// gzipReadCloser closes both the gzip stream and the underlying body.
type gzipReadCloser struct {
	*gzip.Reader
	inner io.Closer
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.Reader.Close()
	if err := g.inner.Close(); err != nil {
		return err
	}
	return gzErr
}

// Gunzip wraps rc in a gzip decompressor. Closing the returned reader
// closes rc as well.
func Gunzip(rc io.ReadCloser) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "gzip: open stream")
	}
	return &gzipReadCloser{Reader: gz, inner: rc}, nil
}
