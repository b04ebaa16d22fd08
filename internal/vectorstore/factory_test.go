package vectorstore

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	x, err := New(ctx, config.VectorStoreConfig{Provider: "sql"}, st, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "sql", x.Name())

	x, err = New(ctx, config.VectorStoreConfig{Provider: "chromem"}, st, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "chromem", x.Name())

	_, err = New(ctx, config.VectorStoreConfig{Provider: "faiss"}, st, 2, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
