package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/search"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(config.StorageConfig{Path: filepath.Join(t.TempDir(), "ragd.db")}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// addDocument stores, links and keyword-indexes a one-chunk document.
func addDocument(t *testing.T, st *store.Store, idx *search.Index, userID, name, content string) string {
	t.Helper()
	ctx := context.Background()
	var id string
	var chunks []store.Chunk
	err := st.InTx(ctx, func(tx *store.Store) error {
		var err error
		if id, err = tx.StoreDocument(ctx, name, "hash-"+name); err != nil {
			return err
		}
		if err = tx.LinkUserDocument(ctx, userID, id); err != nil {
			return err
		}
		chunks, err = tx.StoreChunks(ctx, id, []string{content}, [][]float32{{1, 0}})
		return err
	})
	require.NoError(t, err)
	if idx != nil {
		require.NoError(t, idx.IndexChunks(ctx, chunks))
	}
	return id
}

func newTestDocuments(t *testing.T) (*Documents, *store.Store, *search.Index) {
	t.Helper()
	st := newTestStore(t)
	idx, err := search.Open("", logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	docs, err := NewDocuments(st, idx, nil)
	require.NoError(t, err)
	return docs, st, idx
}

func TestDocuments_List(t *testing.T) {
	docs, st, _ := newTestDocuments(t)
	ctx := context.Background()

	first := addDocument(t, st, nil, "alice", "a.txt", "alpha")
	second := addDocument(t, st, nil, "alice", "b.txt", "beta")
	addDocument(t, st, nil, "bob", "c.txt", "gamma")

	got, err := docs.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{first, second}, []string{got[0].ID, got[1].ID})
	for _, d := range got {
		assert.False(t, d.EnabledForQA)
	}

	empty, err := docs.List(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = docs.List(ctx, " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDocuments_Toggle(t *testing.T) {
	docs, st, _ := newTestDocuments(t)
	ctx := context.Background()

	mine := addDocument(t, st, nil, "alice", "a.txt", "alpha")
	theirs := addDocument(t, st, nil, "bob", "b.txt", "beta")

	tests := []struct {
		name     string
		ids      []string
		wantKind apperr.Kind
		wantMsg  string
	}{
		{name: "empty selection", ids: nil, wantKind: apperr.KindValidation, wantMsg: "No documents selected"},
		{name: "not owned", ids: []string{mine, theirs}, wantKind: apperr.KindNotFound, wantMsg: "Document not found"},
		{name: "unknown id", ids: []string{"missing"}, wantKind: apperr.KindNotFound, wantMsg: "Document not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := docs.Toggle(ctx, "alice", tt.ids)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperr.MessageOf(err))
		})
	}

	list, err := docs.List(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, list[0].EnabledForQA, "failed toggles change nothing")

	require.NoError(t, docs.Toggle(ctx, "alice", []string{mine}))
	list, err = docs.List(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, list[0].EnabledForQA)

	require.NoError(t, docs.Toggle(ctx, "alice", []string{mine}))
	list, err = docs.List(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, list[0].EnabledForQA)
}

func TestDocuments_Search(t *testing.T) {
	docs, st, idx := newTestDocuments(t)
	ctx := context.Background()

	mine := addDocument(t, st, idx, "alice", "crm.txt", "Our CRM is Salesforce.")
	addDocument(t, st, idx, "bob", "other.txt", "Bob also uses Salesforce.")

	hits, err := docs.Search(ctx, "alice", "salesforce", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, mine, hits[0].DocumentID)

	hits, err = docs.Search(ctx, "carol", "salesforce", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = docs.Search(ctx, "alice", "  ", 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDocuments_SearchDisabled(t *testing.T) {
	docs, err := NewDocuments(newTestStore(t), nil, nil)
	require.NoError(t, err)

	_, err = docs.Search(context.Background(), "alice", "crm", 0)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestNewDocuments_RequiresStore(t *testing.T) {
	_, err := NewDocuments(nil, nil, nil)
	assert.Error(t, err)
}
