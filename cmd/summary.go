package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/fatih/color"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/pipeline"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	alertColor  = color.New(color.FgRed, color.Bold)
)

func printCrawl(w io.Writer, stats map[string]crawler.CrawlStats) {
	headerColor.Fprintln(w, "crawl")
	for _, name := range slices.Sorted(maps.Keys(stats)) {
		s := stats[name]
		listed := 0
		for _, n := range s.ListedIDs {
			listed += n
		}
		fmt.Fprintf(w, "  %-9s listed %d, fetched %d (recovered %d), documents %d", name, listed, s.Fetched, s.Recovered, s.DocumentKeys)
		if len(s.Dropped) > 0 {
			warnColor.Fprintf(w, ", dropped %d", len(s.Dropped))
		}
		fmt.Fprintln(w)
	}
}

func printParse(w io.Writer, stats map[string]pipeline.ParseStats) {
	headerColor.Fprintln(w, "parse")
	for _, name := range slices.Sorted(maps.Keys(stats)) {
		s := stats[name]
		fmt.Fprintf(w, "  %-9s parsed %d, comments %d", name, s.Parsed, s.Comments)
		if s.Dropped > 0 || s.Issues > 0 {
			warnColor.Fprintf(w, ", dropped %d, issues %d", s.Dropped, s.Issues)
		}
		fmt.Fprintln(w)
	}
}

func printMerge(w io.Writer, s pipeline.MergeStats) {
	headerColor.Fprintln(w, "merge")
	fmt.Fprintf(w, "  platforms %v, posts %d, comments %d\n", s.Platforms, s.Contents, s.Comments)
}

func printAnalyze(w io.Writer, s pipeline.AnalyzeStats) {
	headerColor.Fprintln(w, "analyze")
	fmt.Fprintf(w, "  documents %d, tagged %d, keyword matches %d, ", s.Documents, s.Tagged, s.Matches)
	if s.Alerts > 0 {
		alertColor.Fprintf(w, "alerts %d\n", s.Alerts)
		return
	}
	okColor.Fprintln(w, "alerts 0")
}

func printLoad(w io.Writer, s pipeline.LoadStats) {
	headerColor.Fprintln(w, "load")
	if s.Skipped {
		warnColor.Fprintf(w, "  skipped: %s\n", s.Reason)
		return
	}
	fmt.Fprintf(w, "  eligible %d, inserted %d\n", s.Eligible, s.Inserted)
	if s.Error != "" {
		alertColor.Fprintf(w, "  failed: %s\n", s.Error)
	}
}

func printNotify(w io.Writer, s pipeline.NotifyStats) {
	headerColor.Fprintln(w, "notify")
	switch {
	case s.Alerts == 0 && s.Error == "":
		okColor.Fprintln(w, "  no alerts")
	case s.Alerts > 0:
		fmt.Fprintf(w, "  alerts %d, slack %t, pubsub %t\n", s.Alerts, s.Slack, s.Published)
	}
	if s.Error != "" {
		alertColor.Fprintf(w, "  failed: %s\n", s.Error)
	}
}

// printRun prints whichever stages completed.
func printRun(w io.Writer, s pipeline.RunStats, reported int64) {
	headerColor.Fprintf(w, "run %s\n", s.Date)
	if s.Crawl != nil {
		printCrawl(w, s.Crawl)
	}
	if s.Parse != nil {
		printParse(w, s.Parse)
	}
	if s.Merge != nil {
		printMerge(w, *s.Merge)
	}
	if s.Analyze != nil {
		printAnalyze(w, *s.Analyze)
	}
	if s.Load != nil {
		printLoad(w, *s.Load)
	}
	if s.Notify != nil {
		printNotify(w, *s.Notify)
	}
	if reported > 0 {
		warnColor.Fprintf(w, "errors reported: %d\n", reported)
	}
}
