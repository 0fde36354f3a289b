package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Collect yesterday's and today's posts from each platform",
		Long: `Walks each enabled platform's search listing for every configured car model
until posts older than the previous midnight, fetches the detail pages, and
stores the captured fragments under raw_html/<platform>/<date>.json.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Crawl(cmd.Context(), date, opts.platform)
			printCrawl(cmd.OutOrStdout(), stats)
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}
			return nil
		},
	}
	addPlatformFlag(cmd, opts)
	return cmd
}

func newParseCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Extract posts and comments from the raw fragments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Parse(cmd.Context(), date, opts.platform)
			printParse(cmd.OutOrStdout(), stats)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			return nil
		},
	}
	addPlatformFlag(cmd, opts)
	return cmd
}

func newMergeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Union every platform's tables for the day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Merge(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}
			printMerge(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Score, tag and roll up the merged day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Analyze(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			printAnalyze(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Insert the previous day's analyzed posts into the warehouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Load(cmd.Context(), date, force)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			printLoad(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "load even before warehouse.load_after_hour")
	return cmd
}

func newNotifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Send the day's popularity alerts to Slack and Pub/Sub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			date, err := opts.runDate(a)
			if err != nil {
				return err
			}
			stats, err := a.Runner().Notify(cmd.Context(), date)
			printNotify(cmd.OutOrStdout(), stats)
			if err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			return nil
		},
	}
}
