package crawler

import (
	"fmt"
	"sort"
)

// Entity is a tracked subject with its search-term synonyms.
type Entity struct {
	Name  string
	Terms []string
}

// Synonyms maps entity names to search terms.
type Synonyms map[string][]string

// DefaultSynonyms is the static entity table shared by every platform.
var DefaultSynonyms = Synonyms{
	"palisade": {"팰리", "펠리", "팰리세이드", "펠리세이드"},
	"avante":   {"아반떼", "아방"},
	"tucson":   {"투싼"},
	"ioniq9":   {"아이오닉9", "오닉9", "아9"},
}

// WithOverrides returns a copy of s where entries in overrides replace the defaults.
func (s Synonyms) WithOverrides(overrides map[string][]string) Synonyms {
	out := make(Synonyms, len(s)+len(overrides))
	for name, terms := range s {
		out[name] = append([]string(nil), terms...)
	}
	for name, terms := range overrides {
		if len(terms) == 0 {
			continue
		}
		out[name] = append([]string(nil), terms...)
	}
	return out
}

// Expand returns the search terms for one entity.
func (s Synonyms) Expand(name string) ([]string, error) {
	terms, ok := s[name]
	if !ok || len(terms) == 0 {
		return nil, fmt.Errorf("expand %q: %w", name, ErrUnknownEntity)
	}
	return append([]string(nil), terms...), nil
}

// Entities resolves names into entities, preserving order.
func (s Synonyms) Entities(names []string) ([]Entity, error) {
	out := make([]Entity, 0, len(names))
	for _, name := range names {
		terms, err := s.Expand(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Entity{Name: name, Terms: terms})
	}
	return out, nil
}

// Names lists the known entities in sorted order.
func (s Synonyms) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
