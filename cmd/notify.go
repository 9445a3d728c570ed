package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vulnradar/vulnradar/internal/model"
)

var notifyDryRun bool

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Re-dispatch notifications from stored state",
	Long:  "Loads the latest snapshot and the issue registry and opens issues for notifiable records that have none. Useful after a crash between notification and commit, or after widening the notification policy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := st.LatestSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "load latest snapshot")
		}
		if snap.Len() == 0 {
			return eris.New("no snapshot in store; run a scan first")
		}
		registry, err := st.LoadRegistry(ctx)
		if err != nil {
			return eris.Wrap(err, "load registry")
		}

		// Synthesize creation candidates for untracked relevant records;
		// the dispatcher applies the policy, cap, and ordering.
		now := time.Now()
		var changes []model.Change
		for _, id := range snap.IDs() {
			rec, _ := snap.Get(id)
			if !rec.IsRelevant {
				continue
			}
			if _, tracked := registry.Get(id); tracked {
				continue
			}
			changes = append(changes, model.Change{
				ID:         id,
				Type:       model.ChangeNewRelevant,
				DetectedAt: now,
			})
		}

		dispatcher := buildDispatcher(st, notifyDryRun)
		_, result, err := dispatcher.Dispatch(ctx, changes, snap, registry)
		if err != nil {
			return eris.Wrap(err, "dispatch")
		}

		fmt.Fprintf(os.Stdout, "Candidates: %d, issues created: %d, failures: %d\n",
			len(changes), result.Created, result.Failures)
		return nil
	},
}

func init() {
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "log what would be created without touching the tracker")
	rootCmd.AddCommand(notifyCmd)
}
