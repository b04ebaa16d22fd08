package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
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

func seedDocument(t *testing.T, st *store.Store, userID, hash string, texts []string, vecs [][]float32) string {
	t.Helper()
	ctx := context.Background()
	var id string
	require.NoError(t, st.InTx(ctx, func(tx *store.Store) error {
		var err error
		if id, err = tx.StoreDocument(ctx, hash+".txt", hash); err != nil {
			return err
		}
		if err := tx.LinkUserDocument(ctx, userID, id); err != nil {
			return err
		}
		_, err = tx.StoreChunks(ctx, id, texts, vecs)
		return err
	}))
	return id
}

func TestSQLIndex_Search(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Distances from the query unit(0): 0, ~0.0199, ~0.0789, 1.
	near := seedDocument(t, st, "alice", "h1",
		[]string{"exact", "close", "orthogonal"},
		[][]float32{unit(0), unit(0.2), unit(1.5707963)},
	)
	other := seedDocument(t, st, "alice", "h2",
		[]string{"farther"},
		[][]float32{unit(0.4)},
	)

	x, err := NewSQLIndex(st, logging.NewNop())
	require.NoError(t, err)

	matches, err := x.Search(ctx, unit(0), []string{near, other}, 0.3, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "exact", matches[0].Content)
	assert.Equal(t, "close", matches[1].Content)
	assert.Equal(t, "farther", matches[2].Content)
	assert.Equal(t, other, matches[2].DocumentID)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}

	t.Run("restricted to given documents", func(t *testing.T) {
		matches, err := x.Search(ctx, unit(0), []string{other}, 0.3, 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, other, matches[0].DocumentID)
	})

	t.Run("limit", func(t *testing.T) {
		matches, err := x.Search(ctx, unit(0), []string{near, other}, 0.3, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "exact", matches[0].Content)
	})

	t.Run("threshold boundary is inclusive", func(t *testing.T) {
		matches, err := x.Search(ctx, unit(0), []string{near}, 1.0, 0)
		require.NoError(t, err)
		assert.Len(t, matches, 3)
	})

	t.Run("no documents", func(t *testing.T) {
		matches, err := x.Search(ctx, unit(0), []string{}, 0.3, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("nil searches every document", func(t *testing.T) {
		matches, err := x.Search(ctx, unit(0), nil, 0.3, 0)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "exact", matches[0].Content)
		assert.Equal(t, other, matches[2].DocumentID)
	})
}

func TestSQLIndex_AddIsNoop(t *testing.T) {
	st := newTestStore(t)
	x, err := NewSQLIndex(st, nil)
	require.NoError(t, err)
	assert.NoError(t, x.Add(context.Background(), []Record{{ChunkID: "c"}}))
	assert.NoError(t, x.DeleteDocument(context.Background(), "d"))
	assert.NoError(t, x.Health(context.Background()))
	assert.Equal(t, "sql", x.Name())
}

func TestNewSQLIndex_RequiresStore(t *testing.T) {
	_, err := NewSQLIndex(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
