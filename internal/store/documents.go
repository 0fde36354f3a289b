package store

import (
	"sync"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// Documents is an append-only map of raw documents keyed by URL. Each key is written at most once.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]crawler.RawDocument
}

// NewDocuments returns an empty map.
func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]crawler.RawDocument)}
}

// PutIfAbsent stores doc under its URL unless that URL is already present.
// It reports whether doc was stored.
func (d *Documents) PutIfAbsent(doc crawler.RawDocument) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.docs[doc.URL]; exists {
		return false
	}
	d.docs[doc.URL] = doc
	return true
}

// Get returns the document stored for url.
func (d *Documents) Get(url string) (crawler.RawDocument, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[url]
	return doc, ok
}

// Len returns the number of stored documents.
func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Snapshot returns a copy of the stored documents.
func (d *Documents) Snapshot() map[string]crawler.RawDocument {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]crawler.RawDocument, len(d.docs))
	for k, v := range d.docs {
		out[k] = v
	}
	return out
}
