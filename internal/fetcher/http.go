package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vulnradar/vulnradar/internal/resilience"
)

const defaultUserAgent = "vulnradar/1.0"

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
}

// DefaultRateLimiters returns the per-host rate limiters for the upstream
// feed hosts. NVD rejects bursty unauthenticated clients, so it gets the
// tightest budget.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"nvd.nist.gov":     rate.NewLimiter(rate.Every(6*time.Second), 1),
		"www.cisa.gov":     rate.NewLimiter(2, 2),
		"epss.cyentia.com": rate.NewLimiter(2, 2),
		"github.com":       rate.NewLimiter(5, 5),
	}
}

// HTTPFetcher implements Fetcher using net/http with retry and per-host
// rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTP creates an HTTPFetcher. Zero-value options get defaults: 120s
// timeout, 3 attempts, the standard feed-host limiters.
func NewHTTP(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RateLimiters == nil {
		opts.RateLimiters = DefaultRateLimiters()
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

func (f *HTTPFetcher) wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	if limiter, ok := f.opts.RateLimiters[u.Hostname()]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limit wait")
		}
	}
	return nil
}

// Download fetches the URL, retrying transient failures, and returns the
// response body. The caller must close it.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.wait(ctx, rawURL); err != nil {
		return nil, err
	}

	cfg := resilience.DefaultRetryConfig(fmt.Sprintf("fetch %s", rawURL))
	cfg.MaxAttempts = f.opts.MaxRetries

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: build request %s", rawURL)
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: GET %s", rawURL), 0)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close() //nolint:errcheck
			err := eris.Errorf("fetcher: GET %s returned %d", rawURL, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		return resp.Body, nil
	})
}

// DownloadToFile fetches the URL and writes the body to path, creating
// parent directories as needed. Returns bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrapf(err, "fetcher: mkdir for %s", path)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", path)
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, body)
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}
