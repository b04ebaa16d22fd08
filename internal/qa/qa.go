// Package qa answers a user's question from the documents they enabled.
//
// A query checks the cache, embeds the question, retrieves chunks within
// the distance threshold, reranks when there are more than RerankTrigger
// candidates, generates an answer from the selected chunks and caches it.
// Empty retrieval and empty reranking return fixed explanatory answers,
// which are never cached.
package qa

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retriever"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/qa"

var tracer = otel.Tracer(instrumentationName)

// RerankTrigger is the candidate count above which chunks are reranked, and
// the number of chunks kept afterwards.
const RerankTrigger = 10

const (
	// NoDocumentsAnswer is returned when retrieval finds nothing.
	NoDocumentsAnswer = "No relevant documents found for your question. Please try rephrasing or upload relevant documents first or enable the uploaded documents for QA."

	// NoRelevantContentAnswer is returned when reranking drops every chunk.
	NoRelevantContentAnswer = "No highly relevant content found to answer your question accurately. Please try rephrasing or upload more relevant documents."
)

// QueryEmbedder embeds the question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds chunks similar to the question vector.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, userID string) ([]retriever.Result, error)
}

// Reranker orders chunks by relevance and drops those under threshold.
type Reranker interface {
	Rerank(ctx context.Context, question string, chunks []string, threshold float64) ([]string, error)
}

// Generator writes an answer from a context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// Cache stores answers. Implementations absorb their own failures.
type Cache interface {
	Get(ctx context.Context, question, userID string) (string, bool)
	Put(ctx context.Context, question, userID, answer string)
}

// Deps are the collaborators of a Service. Cache is optional.
type Deps struct {
	Embedder  QueryEmbedder
	Retriever Retriever
	Reranker  Reranker
	Generator Generator
	Cache     Cache
}

// Service runs the query pipeline.
type Service struct {
	deps           Deps
	scoreThreshold float64
	logger         *logging.Logger
	duration       metric.Float64Histogram
	reranks        metric.Int64Counter
}

// New validates deps. scoreThreshold is passed to the reranker.
func New(deps Deps, scoreThreshold float64, logger *logging.Logger) (*Service, error) {
	switch {
	case deps.Embedder == nil:
		return nil, errors.New("qa: embedder is required")
	case deps.Retriever == nil:
		return nil, errors.New("qa: retriever is required")
	case deps.Reranker == nil:
		return nil, errors.New("qa: reranker is required")
	case deps.Generator == nil:
		return nil, errors.New("qa: generator is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{deps: deps, scoreThreshold: scoreThreshold, logger: logger.Named("qa")}

	meter := otel.Meter(instrumentationName)
	var err error
	s.duration, err = meter.Float64Histogram("ragd.qa.duration",
		metric.WithDescription("Query duration by outcome"),
		metric.WithUnit("s"))
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create query duration histogram", zap.Error(err))
	}
	s.reranks, err = meter.Int64Counter("ragd.qa.reranks_total",
		metric.WithDescription("Queries whose candidates were reranked"))
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create rerank counter", zap.Error(err))
	}
	return s, nil
}

// Answer answers question for userID. Errors are *apperr.Error values.
func (s *Service) Answer(ctx context.Context, question, userID string) (answer string, err error) {
	start := time.Now()
	outcome := "generated"
	ctx = logging.WithUserID(ctx, userID)
	ctx, span := tracer.Start(ctx, "QA.Answer")
	defer func() {
		if err != nil {
			outcome = strings.ToLower(string(apperr.KindOf(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.MessageOf(err))
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		if s.duration != nil {
			s.duration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("outcome", outcome)))
		}
		span.End()
	}()

	if strings.TrimSpace(question) == "" {
		return "", apperr.Validation("qa.validate", "Question must not be empty")
	}

	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(ctx, question, userID); ok {
			outcome = "cached"
			s.logger.Debug(ctx, "answer served from cache", logging.Content("question", question))
			return cached, nil
		}
	}

	vector, err := s.deps.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", apperr.Storage("qa.embed", "Failed to process query", err)
	}

	results, err := s.deps.Retriever.Retrieve(ctx, vector, userID)
	if err != nil {
		return "", apperr.Storage("qa.retrieve", "Failed to process query", err)
	}
	span.SetAttributes(attribute.Int("candidates", len(results)))
	if len(results) == 0 {
		outcome = "no_documents"
		return NoDocumentsAnswer, nil
	}

	chunks := retriever.Contents(results)
	if len(chunks) > RerankTrigger {
		if s.reranks != nil {
			s.reranks.Add(ctx, 1)
		}
		reranked, err := s.deps.Reranker.Rerank(ctx, question, chunks, s.scoreThreshold)
		if err != nil {
			return "", apperr.New(apperr.KindValidation, "qa.rerank", "Failed to rerank chunks", err)
		}
		if len(reranked) == 0 {
			outcome = "no_relevant_content"
			return NoRelevantContentAnswer, nil
		}
		if len(reranked) > RerankTrigger {
			reranked = reranked[:RerankTrigger]
		}
		s.logger.Debug(ctx, "reranked candidates",
			zap.Int("candidates", len(chunks)),
			zap.Int("kept", len(reranked)),
		)
		chunks = reranked
	}

	answer, err = s.deps.Generator.Generate(ctx, question, strings.Join(chunks, "\n"))
	if err != nil {
		return "", apperr.New(apperr.KindValidation, "qa.generate", "Failed to generate answer", err)
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Put(ctx, question, userID, answer)
	}

	s.logger.Info(ctx, "question answered",
		logging.Content("question", question),
		zap.Int("context_chunks", len(chunks)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}
