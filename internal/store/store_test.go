package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

func TestIdentifierSetsDeduplicatesPerEntity(t *testing.T) {
	t.Parallel()

	s := NewIdentifierSets()
	require.Equal(t, 2, s.Add("tucson", crawler.ListingItem{ID: "1"}, crawler.ListingItem{ID: "2"}))
	require.Equal(t, 1, s.Add("tucson", crawler.ListingItem{ID: "2"}, crawler.ListingItem{ID: "3"}))
	require.Equal(t, 1, s.Add("avante", crawler.ListingItem{ID: "2"}))

	ids := func(items []crawler.ListingItem) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.ID)
		}
		return out
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids(s.Items("tucson")))
	assert.Equal(t, map[string]int{"tucson": 3, "avante": 1}, s.Counts())
	assert.Nil(t, s.Items("ioniq9"))

	tasks := s.Tasks()
	require.Len(t, tasks, 4)
	assert.Equal(t, "avante", tasks[0].Entity)
	assert.Equal(t, "tucson", tasks[3].Entity)
	assert.Equal(t, "3", tasks[3].Item.ID)
}

func TestIdentifierSetsConcurrentAdds(t *testing.T) {
	t.Parallel()

	s := NewIdentifierSets()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Add("palisade", crawler.ListingItem{ID: fmt.Sprint(i)})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Items("palisade"), 50)
}

func TestDocumentsFirstWriterWins(t *testing.T) {
	t.Parallel()

	d := NewDocuments()
	require.True(t, d.PutIfAbsent(crawler.RawDocument{URL: "u1", Entity: "tucson", HTML: "a"}))
	require.False(t, d.PutIfAbsent(crawler.RawDocument{URL: "u1", Entity: "avante", HTML: "b"}))

	got, ok := d.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "tucson", got.Entity)
	assert.Equal(t, 1, d.Len())

	snap := d.Snapshot()
	delete(snap, "u1")
	assert.Equal(t, 1, d.Len(), "snapshot must not alias the store")
}

func TestDocumentsConcurrentWritesKeepOneValue(t *testing.T) {
	t.Parallel()

	d := NewDocuments()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			if d.PutIfAbsent(crawler.RawDocument{URL: "shared", Entity: fmt.Sprint(w)}) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, d.Len())
}
