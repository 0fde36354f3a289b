package analytics

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SentimentCount is the number of lexicon hits in one document.
type SentimentCount struct {
	Entity   string
	URL      string
	Positive int64
	Negative int64
}

type lexiconFile struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Lexicon counts positive and negative expressions.
type Lexicon struct {
	positive *regexp.Regexp
	negative *regexp.Regexp
}

// DefaultLexicon loads the embedded sentiment lexicon.
func DefaultLexicon() (*Lexicon, error) {
	raw, err := dataFS.ReadFile("data/lexicon.yaml")
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return LoadLexicon(raw)
}

// LoadLexicon decodes a YAML lexicon and compiles one alternation per polarity.
func LoadLexicon(raw []byte) (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	pos, err := alternation(file.Positive)
	if err != nil {
		return nil, fmt.Errorf("compile positive lexicon: %w", err)
	}
	neg, err := alternation(file.Negative)
	if err != nil {
		return nil, fmt.Errorf("compile negative lexicon: %w", err)
	}
	return &Lexicon{positive: pos, negative: neg}, nil
}

func alternation(words []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	return regexp.Compile(strings.Join(quoted, "|"))
}

// Count scores one document.
func (l *Lexicon) Count(doc MergedDocument) SentimentCount {
	text := doc.Text()
	return SentimentCount{
		Entity:   doc.Entity,
		URL:      doc.URL,
		Positive: countMatches(l.positive, text),
		Negative: countMatches(l.negative, text),
	}
}

// CountAll scores every document.
func (l *Lexicon) CountAll(docs []MergedDocument) []SentimentCount {
	out := make([]SentimentCount, 0, len(docs))
	for _, d := range docs {
		out = append(out, l.Count(d))
	}
	return out
}

func countMatches(re *regexp.Regexp, text string) int64 {
	if re == nil {
		return 0
	}
	return int64(len(re.FindAllStringIndex(text, -1)))
}
