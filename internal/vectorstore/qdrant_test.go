package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewQdrantIndex_Validation(t *testing.T) {
	valid := config.QdrantConfig{Host: "localhost", Port: 6334, Collection: "ragd_chunks"}

	tests := []struct {
		name      string
		mutate    func(*config.QdrantConfig)
		dimension int
	}{
		{"missing host", func(c *config.QdrantConfig) { c.Host = "" }, 768},
		{"bad port", func(c *config.QdrantConfig) { c.Port = 0 }, 768},
		{"missing collection", func(c *config.QdrantConfig) { c.Collection = "" }, 768},
		{"zero dimension", func(*config.QdrantConfig) {}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewQdrantIndex(context.Background(), cfg, tt.dimension, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{status.Error(codes.Unavailable, "down"), true},
		{status.Error(codes.DeadlineExceeded, "slow"), true},
		{status.Error(codes.ResourceExhausted, "busy"), true},
		{status.Error(codes.InvalidArgument, "bad"), false},
		{status.Error(codes.NotFound, "gone"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransientError(tt.err), "%v", tt.err)
	}
}

func TestDocumentFilter(t *testing.T) {
	f := documentFilter([]string{"a", "b"})
	require.Len(t, f.Must, 1)
	field := f.Must[0].GetField()
	require.NotNil(t, field)
	assert.Equal(t, payloadDocumentID, field.Key)
	assert.Equal(t, []string{"a", "b"}, field.GetMatch().GetKeywords().GetStrings())

	assert.Nil(t, documentFilter(nil), "nil ids search the whole collection")
}

func TestPointMatch(t *testing.T) {
	r := Record{ChunkID: "6f1c1c1e-3c57-4c55-8d8e-0b6c5d7f2a10", DocumentID: "doc-a", Ordinal: 3, Content: "text"}
	p := &qdrant.ScoredPoint{
		Id:      qdrant.NewIDUUID(r.ChunkID),
		Score:   0.75,
		Payload: recordPayload(r),
	}

	m := pointMatch(p)
	assert.Equal(t, r.ChunkID, m.ChunkID)
	assert.Equal(t, "doc-a", m.DocumentID)
	assert.Equal(t, 3, m.Ordinal)
	assert.Equal(t, "text", m.Content)
	assert.InDelta(t, 0.25, m.Distance, 1e-6)
}
