package analytics

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnresolvedCategory is returned by Validate when a small category has no large category.
var ErrUnresolvedCategory = errors.New("small category has no large category")

// KeywordMatch is one keyword found in one document.
type KeywordMatch struct {
	Entity        string
	URL           string
	Title         string
	Keyword       string
	SmallCategory string
	// LargeCategory is "" when the small category does not resolve.
	LargeCategory string
	Popularity    float64
}

type taxonomyFile struct {
	LargeCategories map[string]string `yaml:"large_categories"`
	Keywords        []struct {
		SmallCategory string   `yaml:"small_category"`
		Terms         []string `yaml:"terms"`
	} `yaml:"keywords"`
}

type keywordEntry struct {
	keyword string
	small   string
}

// Taxonomy maps keywords to small categories and small categories to large ones.
type Taxonomy struct {
	keywords []keywordEntry
	large    map[string]string
}

// DefaultTaxonomy loads the embedded keyword dictionary.
func DefaultTaxonomy() (*Taxonomy, error) {
	raw, err := dataFS.ReadFile("data/taxonomy.yaml")
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return LoadTaxonomy(raw)
}

// LoadTaxonomy decodes a YAML keyword dictionary. A keyword listed twice keeps its first category.
func LoadTaxonomy(raw []byte) (*Taxonomy, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	t := &Taxonomy{large: make(map[string]string, len(file.LargeCategories))}
	for small, large := range file.LargeCategories {
		t.large[small] = large
	}
	seen := make(map[string]struct{})
	for _, group := range file.Keywords {
		for _, term := range group.Terms {
			if term == "" {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			t.keywords = append(t.keywords, keywordEntry{keyword: term, small: group.SmallCategory})
		}
	}
	return t, nil
}

// Validate reports every small category that does not resolve to a large category.
func (t *Taxonomy) Validate() error {
	var errs []error
	reported := make(map[string]struct{})
	for _, k := range t.keywords {
		if _, ok := t.large[k.small]; ok {
			continue
		}
		if _, done := reported[k.small]; done {
			continue
		}
		reported[k.small] = struct{}{}
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnresolvedCategory, k.small))
	}
	return errors.Join(errs...)
}

// Len returns the number of distinct keywords.
func (t *Taxonomy) Len() int {
	return len(t.keywords)
}

// LargeCategory resolves a small category, returning "" when it is unknown.
func (t *Taxonomy) LargeCategory(small string) string {
	return t.large[small]
}

// Tag returns one match per dictionary keyword contained in the document text.
func (t *Taxonomy) Tag(doc MergedDocument) []KeywordMatch {
	text := doc.Text()
	var out []KeywordMatch
	for _, k := range t.keywords {
		if !strings.Contains(text, k.keyword) {
			continue
		}
		out = append(out, KeywordMatch{
			Entity:        doc.Entity,
			URL:           doc.URL,
			Title:         doc.Title,
			Keyword:       k.keyword,
			SmallCategory: k.small,
			LargeCategory: t.large[k.small],
			Popularity:    doc.Popularity,
		})
	}
	return out
}

// TagAll tags every document and returns the matches plus the documents that matched at least once.
func (t *Taxonomy) TagAll(docs []MergedDocument) ([]KeywordMatch, []MergedDocument) {
	var (
		matches []KeywordMatch
		tagged  []MergedDocument
	)
	for _, doc := range docs {
		m := t.Tag(doc)
		if len(m) == 0 {
			continue
		}
		matches = append(matches, m...)
		tagged = append(tagged, doc)
	}
	return matches, tagged
}
