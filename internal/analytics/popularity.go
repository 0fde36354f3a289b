package analytics

import (
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// Weights of the popularity formula.
const (
	likesWeight    = 0.4
	viewsWeight    = 0.2
	commentsWeight = 0.4
)

// Baseline holds the platform averages a post is normalized against.
type Baseline struct {
	AvgLikes         float64 `yaml:"avg_likes" mapstructure:"avg_likes"`
	AvgViews         float64 `yaml:"avg_views" mapstructure:"avg_views"`
	AvgCommentsCount float64 `yaml:"avg_comments_count" mapstructure:"avg_comments_count"`
}

// Baselines maps a platform name to its Baseline.
type Baselines map[string]Baseline

// DefaultBaselines returns the embedded baseline table.
func DefaultBaselines() (Baselines, error) {
	raw, err := dataFS.ReadFile("data/baselines.yaml")
	if err != nil {
		return nil, fmt.Errorf("read baselines: %w", err)
	}
	return LoadBaselines(raw)
}

// LoadBaselines decodes a YAML baseline table.
func LoadBaselines(raw []byte) (Baselines, error) {
	var out Baselines
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode baselines: %w", err)
	}
	for site, b := range out {
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("baseline %s: %w", site, err)
		}
	}
	return out, nil
}

// WithOverrides returns a copy of b with the given platforms replaced.
func (b Baselines) WithOverrides(overrides map[string]Baseline) (Baselines, error) {
	out := maps.Clone(b)
	if out == nil {
		out = Baselines{}
	}
	for site, o := range overrides {
		if err := o.validate(); err != nil {
			return nil, fmt.Errorf("baseline override %s: %w", site, err)
		}
		out[site] = o
	}
	return out, nil
}

// Score computes the popularity of a post on site. Unknown sites score 0.
func (b Baselines) Score(site string, likes, views, comments int64) float64 {
	base, ok := b[site]
	if !ok {
		return 0
	}
	return likesWeight*float64(likes)/base.AvgLikes +
		viewsWeight*float64(views)/base.AvgViews +
		commentsWeight*float64(comments)/base.AvgCommentsCount
}

// Apply scores every document in place.
func (b Baselines) Apply(docs []MergedDocument) {
	for i := range docs {
		d := &docs[i]
		d.Popularity = b.Score(d.Site, d.Likes, d.Views, d.CommentCount)
	}
}

func (b Baseline) validate() error {
	if b.AvgLikes <= 0 || b.AvgViews <= 0 || b.AvgCommentsCount <= 0 {
		return fmt.Errorf("averages must be positive, got %+v", b)
	}
	return nil
}
