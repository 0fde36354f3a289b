// Package merge unions the per-platform tables of one day and joins posts with their comments.
package merge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/analytics"
	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// Part is one platform's normalized output for the day. Err is set when it could not be loaded.
type Part struct {
	Platform string
	Contents []crawler.Document
	Comments []crawler.Comment
	Err      error
}

// Daily is the union of every loaded part.
type Daily struct {
	Contents  []crawler.Document
	Comments  []crawler.Comment
	Platforms []string
}

// Merger combines platform parts.
type Merger struct {
	reporter crawler.ErrorReporter
	logger   *zap.Logger
}

// New builds a Merger. reporter may be nil.
func New(reporter crawler.ErrorReporter, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{reporter: reporter, logger: logger.Named("merge")}
}

// Merge unions the parts that loaded. It fails with crawler.ErrNoData only when none did.
func (m *Merger) Merge(ctx context.Context, parts []Part) (Daily, error) {
	var out Daily
	for _, p := range parts {
		if p.Err != nil {
			m.logger.Warn("skipping missing part",
				zap.String("platform", p.Platform),
				zap.String("stage", crawler.StageLoadPart),
				zap.Error(p.Err),
			)
			if m.reporter != nil {
				m.reporter.Report(ctx, crawler.NewErrorEvent(p.Platform, crawler.StageLoadPart, "", p.Err))
			}
			continue
		}
		out.Platforms = append(out.Platforms, p.Platform)
		out.Contents = append(out.Contents, p.Contents...)
		out.Comments = append(out.Comments, p.Comments...)
	}
	if len(out.Platforms) == 0 {
		return Daily{}, fmt.Errorf("merge %d parts: %w", len(parts), crawler.ErrNoData)
	}
	m.logger.Info("merged parts",
		zap.Strings("platforms", out.Platforms),
		zap.Int("contents", len(out.Contents)),
		zap.Int("comments", len(out.Comments)),
	)
	return out, nil
}

// Join attaches each post's comments and drops posts without a title or body.
func Join(daily Daily) []analytics.MergedDocument {
	byURL := make(map[string][]string)
	for _, c := range daily.Comments {
		if c.Text == "" {
			continue
		}
		byURL[c.URL] = append(byURL[c.URL], c.Text)
	}

	out := make([]analytics.MergedDocument, 0, len(daily.Contents))
	for _, d := range daily.Contents {
		if d.Title == "" || d.Body == "" {
			continue
		}
		out = append(out, analytics.MergedDocument{
			Document:   d,
			CommentAgg: strings.Join(byURL[d.URL], " "),
		})
	}
	return out
}
