package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/metrics"
	"github.com/vulnradar/vulnradar/internal/monitoring"
	"github.com/vulnradar/vulnradar/internal/notify"
	"github.com/vulnradar/vulnradar/internal/pipeline"
)

var scanDryRun bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one full radar scan",
	Long:  "Fetches all five feeds, merges them into a canonical snapshot, diffs against the previous run, and opens or escalates tracker issues for significant changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		watchlist, err := pipeline.LoadWatchlist(cfg.Watchlist.Path)
		if err != nil {
			return eris.Wrap(err, "load watchlist")
		}

		p := pipeline.New(
			cfg,
			st,
			buildSources(),
			watchlist,
			buildDispatcher(st, scanDryRun),
			buildReporter(),
			notify.NewSlackNotifier(cfg.Slack.WebhookURL),
			monitoring.NewAlerter(cfg.Monitoring),
			metrics.New(),
		)
		p.DryRun = scanDryRun

		stats, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "scan")
		}

		fmt.Fprintf(os.Stdout, "Merged %d records (%d relevant, %d critical, %d warning)\n",
			stats.RecordsMerged, stats.Relevant, stats.Critical, stats.Warning)
		fmt.Fprintf(os.Stdout, "Detected %d changes: %d issues created, %d escalations, %d suppressed\n",
			stats.Changes, stats.IssuesCreated, stats.Escalations, stats.Suppressed)
		if len(stats.FeedsFailed) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: feeds unavailable this run: %v\n", stats.FeedsFailed)
		}
		if stats.NotifyFailures > 0 {
			zap.L().Warn("scan finished with notification failures", zap.Int("failures", stats.NotifyFailures))
		}

		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "detect and log changes without touching the tracker or committing the snapshot")
	rootCmd.AddCommand(scanCmd)
}
