// Package reranker reorders retrieved chunks by cross-encoder relevance to
// the question and drops the ones scoring under a threshold.
package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/reranker"

var (
	// ErrInvalidConfig is returned for unusable reranker settings.
	ErrInvalidConfig = errors.New("invalid reranker config")

	// ErrScoringFailed is returned when the scorer fails or returns the
	// wrong number of scores.
	ErrScoringFailed = errors.New("reranker scoring failed")
)

// Scorer assigns a relevance score to each (query, text) pair. Higher is
// more relevant; the scale depends on the implementation.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
	Name() string
}

// Scored is a chunk and its relevance score.
type Scored struct {
	Text  string
	Score float64
	// Rank is the chunk's position before reranking.
	Rank int
}

// Reranker scores chunks under a retry policy.
type Reranker struct {
	scorer      Scorer
	policy      retry.Policy
	logger      *logging.Logger
	invocations metric.Int64Counter
	dropped     metric.Int64Counter
}

// New wraps scorer. A zero policy means a single attempt.
func New(scorer Scorer, policy retry.Policy, logger *logging.Logger) *Reranker {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("reranker")
	r := &Reranker{scorer: scorer, policy: policy, logger: logger}

	meter := otel.Meter(instrumentationName)
	var err error
	r.invocations, err = meter.Int64Counter("ragd.rerank.invocations_total",
		metric.WithDescription("Rerank calls by scorer"))
	if err != nil {
		logger.Warn(context.Background(), "failed to create rerank counter", zap.Error(err))
	}
	r.dropped, err = meter.Int64Counter("ragd.rerank.dropped_total",
		metric.WithDescription("Chunks dropped by the rerank score threshold"))
	if err != nil {
		logger.Warn(context.Background(), "failed to create rerank dropped counter", zap.Error(err))
	}
	return r
}

// FromConfig builds the configured scorer. Provider "lexical" needs no
// service and is the fallback when no cross-encoder is deployed.
func FromConfig(cfg config.RerankerConfig, logger *logging.Logger) (*Reranker, error) {
	var scorer Scorer
	switch cfg.Provider {
	case "", "tei":
		s, err := NewTEIScorer(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.Duration(),
		})
		if err != nil {
			return nil, err
		}
		scorer = s
	case "lexical":
		scorer = NewLexicalScorer()
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	return New(scorer, retry.FromConfig(cfg.Retry), logger), nil
}

// Rerank returns the chunks scoring at least threshold, highest score
// first. Equal scores keep their retrieval order.
func (r *Reranker) Rerank(ctx context.Context, question string, chunks []string, threshold float64) ([]string, error) {
	scored, err := r.Score(ctx, question, chunks, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Text
	}
	return out, nil
}

// Score is Rerank with the scores kept.
func (r *Reranker) Score(ctx context.Context, question string, chunks []string, threshold float64) ([]Scored, error) {
	if len(chunks) == 0 {
		return []Scored{}, nil
	}

	start := time.Now()
	var scores []float64
	err := r.policy.Do(ctx, r.logger, func(ctx context.Context) error {
		var err error
		scores, err = r.scorer.Score(ctx, question, chunks)
		if err == nil && len(scores) != len(chunks) {
			err = retry.Permanent(fmt.Errorf("%w: got %d scores for %d chunks", ErrScoringFailed, len(scores), len(chunks)))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	kept := make([]Scored, 0, len(chunks))
	for i, s := range scores {
		if s >= threshold {
			kept = append(kept, Scored{Text: chunks[i], Score: s, Rank: i})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	attrs := metric.WithAttributes(attribute.String("scorer", r.scorer.Name()))
	if r.invocations != nil {
		r.invocations.Add(ctx, 1, attrs)
	}
	if r.dropped != nil {
		r.dropped.Add(ctx, int64(len(chunks)-len(kept)), attrs)
	}

	fields := []zap.Field{
		zap.String("scorer", r.scorer.Name()),
		zap.Int("chunks", len(chunks)),
		zap.Int("kept", len(kept)),
		zap.Float64("threshold", threshold),
		zap.Duration("duration", time.Since(start)),
	}
	if len(kept) > 0 {
		fields = append(fields, zap.Float64("top_score", kept[0].Score))
	}
	r.logger.Debug(ctx, "reranked chunks", fields...)
	return kept, nil
}
