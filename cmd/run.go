package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/pipeline"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Long: `Runs crawl, parse, merge, analyze, load and notify for one date. A platform
that fails to crawl or parse is reported and skipped; the run fails only when a
stage is left with nothing to work on.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Run(cmd.Context(), date, pipeline.RunOptions{Platform: opts.platform, Force: force})
			printRun(cmd.OutOrStdout(), stats, a.Reporter().Count())
			if err != nil {
				return fmt.Errorf("run %s: %w", pipeline.DateKey(date), err)
			}
			a.Logger().Info("run complete", zap.String("date", stats.Date))
			return nil
		},
	}
	addPlatformFlag(cmd, opts)
	cmd.Flags().BoolVar(&force, "force", false, "load even before warehouse.load_after_hour")
	return cmd
}
