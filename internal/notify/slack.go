package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/slack-go/slack"

	"github.com/vulnradar/vulnradar/internal/model"
)

// SlackNotifier posts an end-of-run summary to a Slack webhook. It is a
// digest surface, not the alert channel: tracker issues carry the
// per-identifier state, Slack just tells the team a scan ran and what
// it found.
type SlackNotifier struct {
	WebhookURL string

	// post is swappable for tests; defaults to slack.PostWebhookContext.
	post func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackNotifier creates a notifier for the given webhook URL. An
// empty URL disables posting.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		post:       slack.PostWebhookContext,
	}
}

// PostRunSummary sends the scan digest. A disabled notifier is a no-op.
func (s *SlackNotifier) PostRunSummary(ctx context.Context, stats model.RunStats, missingFeeds []string) error {
	if s.WebhookURL == "" {
		return nil
	}

	var b strings.Builder
	b.WriteString("*VulnRadar scan complete*\n")
	fmt.Fprintf(&b, "Records merged: %d (relevant %d, critical %d, warning %d)\n",
		stats.RecordsMerged, stats.Relevant, stats.Critical, stats.Warning)
	fmt.Fprintf(&b, "Changes: %d | issues created: %d | escalations: %d | suppressed: %d\n",
		stats.Changes, stats.IssuesCreated, stats.Escalations, stats.Suppressed)
	if stats.NotifyFailures > 0 {
		fmt.Fprintf(&b, ":warning: %d notification failures\n", stats.NotifyFailures)
	}
	if len(missingFeeds) > 0 {
		fmt.Fprintf(&b, ":warning: feeds unavailable this run: %s\n", strings.Join(missingFeeds, ", "))
	}

	msg := &slack.WebhookMessage{Text: b.String()}
	if err := s.post(ctx, s.WebhookURL, msg); err != nil {
		return eris.Wrap(err, "notify: slack webhook")
	}
	return nil
}
