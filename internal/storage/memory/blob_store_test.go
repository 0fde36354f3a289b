package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "raw_html/clien/2024-10-18.json", "application/json", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://raw_html/clien/2024-10-18.json", uri)

	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "raw_html/clien/2024-10-18.json")
	require.NoError(t, err)
	require.Equal(t, "content", string(got))

	got[0] = 'X'
	again, err := store.GetObject(context.Background(), "raw_html/clien/2024-10-18.json")
	require.NoError(t, err)
	require.Equal(t, "content", string(again))
}

func TestBlobStoreMissing(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.GetObject(context.Background(), "nope")
	require.ErrorIs(t, err, crawler.ErrObjectNotFound)

	_, err = store.PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}

func TestBlobStoreKeys(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, k := range []string{"b", "a", "c"} {
		_, err := store.PutObject(context.Background(), k, "", []byte(k))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a", "b", "c"}, store.Keys())
}
