package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultBatchSize = 32

// Embedder is the embedding capability used by the pipelines. Vectors are
// unit-normalized so cosine distance reduces to 1 - dot product.
type Embedder struct {
	provider  Provider
	model     string
	batchSize int
	policy    retry.Policy
	metrics   *Metrics
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets how many texts go into one provider call.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRetryPolicy sets the retry policy for provider calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Embedder) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(e *Embedder) { e.metrics = m }
}

// New wraps provider. Without options it uses batches of 32 and a single attempt.
func New(provider Provider, model string, opts ...Option) *Embedder {
	e := &Embedder{
		provider:  provider,
		model:     model,
		batchSize: defaultBatchSize,
		policy:    retry.Policy{MaxAttempts: 1},
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds the provider and wraps it with the configured batching
// and retry policy.
func FromConfig(cfg config.EmbeddingsConfig, logger *logging.Logger) (*Embedder, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return New(provider, cfg.Model,
		WithBatchSize(cfg.BatchSize),
		WithRetryPolicy(retry.FromConfig(cfg.Retry)),
		WithLogger(logger.Named("embeddings")),
		WithMetrics(NewMetrics(logger)),
	), nil
}

// EmbedDocuments returns one unit vector per text, in input order. An empty
// input returns an empty result without calling the provider.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := e.tracer.Start(ctx, "embeddings.EmbedDocuments",
		trace.WithAttributes(attribute.Int("texts", len(texts)), attribute.String("model", e.model)))
	defer span.End()

	start := time.Now()
	defer func() {
		e.metrics.RecordGeneration(ctx, e.model, "embed_documents", time.Since(start), len(texts), err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	vectors = make([][]float32, 0, len(texts))
	for begin := 0; begin < len(texts); begin += e.batchSize {
		end := begin + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[begin:end]

		var out [][]float32
		err := e.call(ctx, func(ctx context.Context) error {
			var callErr error
			out, callErr = e.provider.EmbedDocuments(ctx, batch)
			if callErr == nil && len(out) != len(batch) {
				callErr = retry.Permanent(fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(out), len(batch)))
			}
			return callErr
		})
		if err != nil {
			return nil, err
		}
		for _, v := range out {
			vectors = append(vectors, Normalize(v))
		}
	}

	e.logger.Debug(ctx, "embedded documents",
		zap.Int("texts", len(texts)),
		zap.Duration("duration", time.Since(start)),
	)
	return vectors, nil
}

// EmbedQuery returns the unit vector for a question.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	ctx, span := e.tracer.Start(ctx, "embeddings.EmbedQuery", trace.WithAttributes(attribute.String("model", e.model)))
	defer span.End()

	start := time.Now()
	defer func() {
		e.metrics.RecordGeneration(ctx, e.model, "embed_query", time.Since(start), 1, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	err = e.call(ctx, func(ctx context.Context) error {
		var callErr error
		vector, callErr = e.provider.EmbedQuery(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return Normalize(vector), nil
}

// call runs op under the retry policy and maps exhaustion to ErrModelUnavailable.
func (e *Embedder) call(ctx context.Context, op func(context.Context) error) error {
	err := e.policy.Do(ctx, e.logger, func(ctx context.Context) error {
		e.metrics.RecordAttempt(ctx, e.model)
		return op(ctx)
	})
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return err
}

// Dimension returns the provider's embedding dimension.
func (e *Embedder) Dimension() int {
	return e.provider.Dimension()
}

// Close releases the provider.
func (e *Embedder) Close() error {
	return e.provider.Close()
}

// Normalize returns v scaled to unit length. Zero vectors are returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
