package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vulnradar/vulnradar/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "Vulnerability radar",
	Long:  "Aggregates five vulnerability feeds into one canonical dataset, diffs it against the previous run, and opens or escalates tracker issues for significant changes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
