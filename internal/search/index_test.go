package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testChunks() []store.Chunk {
	return []store.Chunk{
		{ID: "c1", DocumentID: "doc-a", Ordinal: 0, Content: "The invoice total is due within thirty days."},
		{ID: "c2", DocumentID: "doc-a", Ordinal: 1, Content: "Late payments accrue interest monthly."},
		{ID: "c3", DocumentID: "doc-b", Ordinal: 0, Content: "Invoices are emailed to the billing contact."},
		{ID: "c4", DocumentID: "doc-c", Ordinal: 0, Content: "Kubernetes clusters autoscale nodes."},
	}
}

func TestIndex_SearchRestrictsToDocuments(t *testing.T) {
	ctx := context.Background()
	idx := newMemIndex(t)
	require.NoError(t, idx.IndexChunks(ctx, testChunks()))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	tests := []struct {
		name    string
		query   string
		docs    []string
		wantIDs []string
	}{
		{name: "stemmed match across documents", query: "invoice", docs: []string{"doc-a", "doc-b"}, wantIDs: []string{"c1", "c3"}},
		{name: "filtered to one document", query: "invoice", docs: []string{"doc-b"}, wantIDs: []string{"c3"}},
		{name: "no allowed documents", query: "invoice", docs: nil, wantIDs: nil},
		{name: "no match", query: "kubernetes", docs: []string{"doc-a"}, wantIDs: nil},
		{name: "empty query", query: "", docs: []string{"doc-a"}, wantIDs: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Search(ctx, tt.query, tt.docs, 10)
			require.NoError(t, err)
			var ids []string
			for _, h := range hits {
				ids = append(ids, h.ChunkID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestIndex_HitFields(t *testing.T) {
	ctx := context.Background()
	idx := newMemIndex(t)
	require.NoError(t, idx.IndexChunks(ctx, testChunks()))

	hits, err := idx.Search(ctx, "interest", []string{"doc-a"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].ChunkID)
	assert.Equal(t, "doc-a", hits[0].DocumentID)
	assert.Equal(t, 1, hits[0].Ordinal)
	assert.Equal(t, "Late payments accrue interest monthly.", hits[0].Content)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.NotEmpty(t, hits[0].Fragments)
}

func TestIndex_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	idx := newMemIndex(t)
	require.NoError(t, idx.IndexChunks(ctx, testChunks()))

	require.NoError(t, idx.DeleteDocument(ctx, "doc-a"))
	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	hits, err := idx.Search(ctx, "invoice", []string{"doc-a", "doc-b"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c3", hits[0].ChunkID)

	require.NoError(t, idx.DeleteDocument(ctx, "missing"))
}

func TestIndex_Persistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "keyword.bleve")

	idx, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, idx.IndexChunks(ctx, testChunks()[:2]))
	require.NoError(t, idx.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestIndex_Closed(t *testing.T) {
	idx, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "x", []string{"d"}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.IndexChunks(context.Background(), testChunks()), ErrClosed)
}

func TestFromConfig_Disabled(t *testing.T) {
	idx, err := FromConfig(config.SearchConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, idx)
}
