package store

import (
	"sort"
	"sync"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// IdentifierSets maps an entity to the ordered, deduplicated listing items collected for it.
type IdentifierSets struct {
	mu    sync.Mutex
	sets  map[string]*orderedSet
	order []string
}

type orderedSet struct {
	seen  map[string]struct{}
	items []crawler.ListingItem
}

// NewIdentifierSets returns an empty collection.
func NewIdentifierSets() *IdentifierSets {
	return &IdentifierSets{sets: make(map[string]*orderedSet)}
}

// Add appends items for entity, skipping identifiers already present. It returns how many were new.
func (s *IdentifierSets) Add(entity string, items ...crawler.ListingItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[entity]
	if !ok {
		set = &orderedSet{seen: make(map[string]struct{})}
		s.sets[entity] = set
		s.order = append(s.order, entity)
	}
	added := 0
	for _, item := range items {
		if _, dup := set.seen[item.ID]; dup {
			continue
		}
		set.seen[item.ID] = struct{}{}
		set.items = append(set.items, item)
		added++
	}
	return added
}

// Items returns a copy of the items collected for entity in insertion order.
func (s *IdentifierSets) Items(entity string) []crawler.ListingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[entity]
	if !ok {
		return nil
	}
	return append([]crawler.ListingItem(nil), set.items...)
}

// Counts returns the number of identifiers per entity.
func (s *IdentifierSets) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.sets))
	for entity, set := range s.sets {
		counts[entity] = len(set.items)
	}
	return counts
}

// Tasks flattens the collection into detail fetch tasks, entities in sorted order.
func (s *IdentifierSets) Tasks() []crawler.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := append([]string(nil), s.order...)
	sort.Strings(entities)
	var tasks []crawler.Task
	for _, entity := range entities {
		for _, item := range s.sets[entity].items {
			tasks = append(tasks, crawler.Task{Entity: entity, Item: item})
		}
	}
	return tasks
}
