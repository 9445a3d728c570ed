// Package fetcher downloads and decodes feed payloads: HTTP with per-host
// rate limits and retry, streaming CSV, streaming JSON arrays, gzip, and
// single-entry ZIP extraction.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote feed data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
