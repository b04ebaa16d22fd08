package retriever

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_OnlyEnabledDocuments(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(config.StorageConfig{Path: filepath.Join(t.TempDir(), "ragd.db")}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ingest := func(userID, hash, text string) string {
		var id string
		require.NoError(t, st.InTx(ctx, func(tx *store.Store) error {
			var err error
			if id, err = tx.StoreDocument(ctx, hash, hash); err != nil {
				return err
			}
			if err := tx.LinkUserDocument(ctx, userID, id); err != nil {
				return err
			}
			_, err = tx.StoreChunks(ctx, id, []string{text}, [][]float32{{1, 0}})
			return err
		}))
		return id
	}

	enabled := ingest("alice", "h1", "enabled chunk")
	ingest("alice", "h2", "disabled chunk")
	bobs := ingest("bob", "h3", "someone else's chunk")
	require.NoError(t, st.ToggleEnablement(ctx, "alice", []string{enabled}))
	require.NoError(t, st.ToggleEnablement(ctx, "bob", []string{bobs}))

	idx, err := vectorstore.NewSQLIndex(st, nil)
	require.NoError(t, err)
	r := New(st, idx, config.RetrievalConfig{DistanceThreshold: 0.3}, nil)

	got, err := r.Retrieve(ctx, []float32{1, 0}, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, enabled, got[0].DocumentID)
	assert.Equal(t, "enabled chunk", got[0].Content)
	assert.InDelta(t, 100, got[0].Similarity, 1e-4)

	got, err = r.Retrieve(ctx, []float32{1, 0}, "carol")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Retrieve(ctx, []float32{1, 0}, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"enabled chunk", "disabled chunk", "someone else's chunk"}, Contents(got))
}
