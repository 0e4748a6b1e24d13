package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/guidecrawler/internal/chunker"
	"github.com/JakeFAU/guidecrawler/internal/storage"
)

func chunk(index int, text string, vec ...float32) storage.ChunkRecord {
	return storage.ChunkRecord{
		Index:     index,
		Text:      text,
		Embedding: vec,
		Metadata:  chunker.Metadata{Title: text, Depth: 1, Breadcrumbs: []string{}, ChunkIndex: index},
	}
}

func TestDocumentStoreReplaceAndFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewDocumentStore()

	_, err := store.FindDocumentByURL(ctx, "https://guide.example.com/a")
	require.ErrorIs(t, err, storage.ErrNotFound)

	doc := storage.Document{URL: "https://guide.example.com/a", Domain: "guide.example.com", Title: "A", ContentHash: "h1"}
	first, err := store.ReplaceDocument(ctx, doc, []storage.ChunkRecord{chunk(0, "one", 1, 0), chunk(1, "two", 0, 1)})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Equal(t, 2, first.ChunkCount)
	require.False(t, first.UpdatedAt.IsZero())

	doc.ContentHash = "h2"
	second, err := store.ReplaceDocument(ctx, doc, []storage.ChunkRecord{chunk(0, "only", 1, 1)})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	found, err := store.FindDocumentByURL(ctx, doc.URL)
	require.NoError(t, err)
	require.Equal(t, "h2", found.ContentHash)
	require.Equal(t, 1, found.ChunkCount)

	chunks := store.Chunks(first.ID)
	require.Len(t, chunks, 1)
	require.Equal(t, "only", chunks[0].Text)
}

func TestDocumentStoreUpsertThenReplaceChunks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewDocumentStore()

	doc, err := store.UpsertDocument(ctx, storage.Document{URL: "https://x.test/", Domain: "x.test"})
	require.NoError(t, err)
	require.Zero(t, doc.ChunkCount)
	require.NoError(t, store.ReplaceChunks(ctx, doc.ID, []storage.ChunkRecord{chunk(0, "a", 1), chunk(1, "b", 1), chunk(2, "c", 1)}))
	require.Len(t, store.Chunks(doc.ID), 3)

	found, err := store.FindDocumentByURL(ctx, doc.URL)
	require.NoError(t, err)
	require.Equal(t, 3, found.ChunkCount)

	// A later metadata upsert keeps the count of the chunks still stored.
	updated, err := store.UpsertDocument(ctx, storage.Document{URL: "https://x.test/", Domain: "x.test", Title: "X"})
	require.NoError(t, err)
	require.Equal(t, doc.ID, updated.ID)
	require.Equal(t, 3, updated.ChunkCount)
	found, err = store.FindDocumentByURL(ctx, doc.URL)
	require.NoError(t, err)
	require.Equal(t, 3, found.ChunkCount)
	require.Equal(t, "X", found.Title)

	require.ErrorIs(t, store.ReplaceChunks(ctx, 999, nil), storage.ErrNotFound)
}

func TestDocumentStoreDeleteByDomain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewDocumentStore()
	for _, url := range []string{"https://a.test/1", "https://a.test/2"} {
		_, err := store.ReplaceDocument(ctx, storage.Document{URL: url, Domain: "a.test"}, []storage.ChunkRecord{chunk(0, url, 1)})
		require.NoError(t, err)
	}
	other, err := store.ReplaceDocument(ctx, storage.Document{URL: "https://b.test/1", Domain: "b.test"}, nil)
	require.NoError(t, err)

	deleted, err := store.DeleteDocumentsByDomain(ctx, "a.test")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	_, err = store.FindDocumentByURL(ctx, "https://a.test/1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	kept, err := store.FindDocumentByURL(ctx, other.URL)
	require.NoError(t, err)
	require.Equal(t, other.ID, kept.ID)
}

func TestDocumentStoreSearchChunks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewDocumentStore()
	_, err := store.ReplaceDocument(ctx, storage.Document{URL: "https://a.test/", Domain: "a.test", Title: "Doc A"},
		[]storage.ChunkRecord{chunk(0, "east", 1, 0), chunk(1, "north", 0, 1), chunk(2, "northeast", 1, 1)})
	require.NoError(t, err)

	results, err := store.SearchChunks(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "east", results[0].Chunk.Text)
	require.Equal(t, "northeast", results[1].Chunk.Text)
	require.Equal(t, "Doc A", results[0].DocumentTitle)
	require.Less(t, results[0].Distance, results[1].Distance)

	none, err := store.SearchChunks(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{2, 4}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: 2},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 2},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tt.want, cosineDistance(tt.a, tt.b), 1e-9)
		})
	}
}
