package reranker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	scores []float64
	errs   []error
	calls  int
}

func (f *fakeScorer) Name() string { return "fake" }

func (f *fakeScorer) Score(context.Context, string, []string) ([]float64, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.scores, nil
}

func TestReranker_Rerank(t *testing.T) {
	chunks := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name      string
		scores    []float64
		threshold float64
		want      []string
	}{
		{
			name:      "sorted by score descending",
			scores:    []float64{0.1, 0.9, 0.5, 0.7, 0.3},
			threshold: 0,
			want:      []string{"b", "d", "c", "e", "a"},
		},
		{
			name:      "threshold is inclusive",
			scores:    []float64{0.1, 0.9, 0.5, 0.7, 0.3},
			threshold: 0.5,
			want:      []string{"b", "d", "c"},
		},
		{
			name:      "ties keep retrieval order",
			scores:    []float64{1, 2, 1, 2, 1},
			threshold: 0,
			want:      []string{"b", "d", "a", "c", "e"},
		},
		{
			name:      "negative logits dropped at zero",
			scores:    []float64{-3.2, -0.1, 0, 4.5, -8},
			threshold: 0,
			want:      []string{"d", "c"},
		},
		{
			name:      "nothing passes",
			scores:    []float64{-1, -2, -3, -4, -5},
			threshold: 0,
			want:      []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&fakeScorer{scores: tt.scores}, retry.Policy{}, nil)
			got, err := r.Rerank(context.Background(), "q", chunks, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReranker_EmptyChunks(t *testing.T) {
	s := &fakeScorer{}
	r := New(s, retry.Policy{}, nil)
	got, err := r.Rerank(context.Background(), "q", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, s.calls)
}

func TestReranker_ScoreCountMismatch(t *testing.T) {
	s := &fakeScorer{scores: []float64{1}}
	r := New(s, retry.Policy{MaxAttempts: 3}, nil)
	_, err := r.Rerank(context.Background(), "q", []string{"a", "b"}, 0)
	assert.ErrorIs(t, err, ErrScoringFailed)
	assert.Equal(t, 1, s.calls, "mismatch is not retried")
}

func TestReranker_Retries(t *testing.T) {
	transient := errors.New("connection reset")
	s := &fakeScorer{scores: []float64{0.5}, errs: []error{transient, nil}}
	r := New(s, retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, nil)

	got, err := r.Rerank(context.Background(), "q", []string{"a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 2, s.calls)

	s = &fakeScorer{errs: []error{transient, transient}}
	r = New(s, retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, nil)
	_, err = r.Rerank(context.Background(), "q", []string{"a"}, 0)
	assert.ErrorIs(t, err, ErrScoringFailed)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, transient)
}

func TestReranker_Score(t *testing.T) {
	r := New(&fakeScorer{scores: []float64{0.2, 0.8}}, retry.Policy{}, nil)
	got, err := r.Score(context.Background(), "q", []string{"a", "b"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Scored{Text: "b", Score: 0.8, Rank: 1}, got[0])
	assert.Equal(t, Scored{Text: "a", Score: 0.2, Rank: 0}, got[1])
}

func TestFromConfig(t *testing.T) {
	r, err := FromConfig(config.RerankerConfig{Provider: "lexical"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "lexical", r.scorer.Name())

	r, err = FromConfig(config.RerankerConfig{Provider: "tei", BaseURL: "http://localhost:8082"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tei", r.scorer.Name())

	_, err = FromConfig(config.RerankerConfig{Provider: "tei"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = FromConfig(config.RerankerConfig{Provider: "colbert"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
