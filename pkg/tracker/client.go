// Package tracker provides a client for the GitHub Issues API, used as
// the external alert surface: one issue per critical vulnerability,
// follow-up comments for escalations.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vulnradar/vulnradar/internal/model"
	"github.com/vulnradar/vulnradar/internal/resilience"
)

// Client defines the issue tracker operations the dispatcher needs.
type Client interface {
	// CreateIssue opens a new issue and returns an opaque handle that
	// later escalations comment on.
	CreateIssue(ctx context.Context, title, body string, labels []string) (string, error)

	// CommentIssue adds a comment to an existing issue.
	CommentIssue(ctx context.Context, handle, body string) error

	// ListOpenAlerts returns the currently open alert issues keyed by the
	// CVE identifier in their title. The dispatcher consults it before
	// creating issues, so identifiers the registry lost but the tracker
	// still shows open are adopted instead of duplicated.
	ListOpenAlerts(ctx context.Context) (map[string]string, error)
}

// Option configures the GitHub client.
type Option func(*githubClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *githubClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *githubClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(c *githubClient) {
		c.limiter = limiter
	}
}

type githubClient struct {
	token   string
	repo    string // "owner/name"
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a GitHub Issues client for the given repository.
func NewClient(token, repo string, opts ...Option) Client {
	c := &githubClient{
		token:   token,
		repo:    repo,
		baseURL: "https://api.github.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Secondary rate limits on issue creation bite well before the
		// documented 5000/h primary limit.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type issueResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

type commentRequest struct {
	Body string `json:"body"`
}

func (c *githubClient) CreateIssue(ctx context.Context, title, body string, labels []string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/issues", c.baseURL, c.repo)

	var resp issueResponse
	if err := c.post(ctx, url, issueRequest{Title: title, Body: body, Labels: labels}, &resp); err != nil {
		return "", eris.Wrapf(err, "tracker: create issue %q", title)
	}
	return fmt.Sprintf("%d", resp.Number), nil
}

func (c *githubClient) CommentIssue(ctx context.Context, handle, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%s/comments", c.baseURL, c.repo, handle)

	if err := c.post(ctx, url, commentRequest{Body: body}, nil); err != nil {
		return eris.Wrapf(err, "tracker: comment issue #%s", handle)
	}
	return nil
}

func (c *githubClient) ListOpenAlerts(ctx context.Context) (map[string]string, error) {
	alerts := map[string]string{}
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/issues?state=open&per_page=100&page=%d", c.baseURL, c.repo, page)

		var issues []issueResponse
		if err := c.get(ctx, url, &issues); err != nil {
			return nil, eris.Wrap(err, "tracker: list open issues")
		}
		for _, issue := range issues {
			if id, ok := alertCVEID(issue.Title); ok {
				alerts[id] = fmt.Sprintf("%d", issue.Number)
			}
		}
		if len(issues) < 100 {
			break
		}
	}
	return alerts, nil
}

// alertCVEID extracts the CVE identifier from an alert issue title, e.g.
// "[VulnRadar] CRITICAL: CVE-2024-0001". Issues without one are not
// alerts and are ignored.
func alertCVEID(title string) (string, bool) {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return "", false
	}
	id := model.NormalizeCVEID(fields[len(fields)-1])
	return id, model.ValidCVEID(id)
}

func (c *githubClient) post(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}
	return c.do(ctx, http.MethodPost, url, body, out)
}

func (c *githubClient) get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *githubClient) do(ctx context.Context, method, url string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resilience.NewFatalError(eris.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200)))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(eris.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200)), resp.StatusCode)
	case resp.StatusCode >= 300:
		return eris.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrap(err, "decode response")
		}
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
