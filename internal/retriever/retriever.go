// Package retriever finds the chunks most similar to a question among the
// documents a user has enabled for question answering.
package retriever

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ragd.retriever")

// DocumentSource lists the documents a user has enabled.
type DocumentSource interface {
	EnabledDocuments(ctx context.Context, userID string) ([]store.EnabledDocument, error)
}

// Result is a retrieved chunk. Similarity is (1 - cosine distance) * 100.
type Result struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Similarity float64
}

// Retriever runs thresholded similarity search.
type Retriever struct {
	docs          DocumentSource
	index         vectorstore.Index
	threshold     float64
	maxCandidates int
	logger        *logging.Logger
}

// New returns a Retriever keeping chunks within cfg.DistanceThreshold.
func New(docs DocumentSource, index vectorstore.Index, cfg config.RetrievalConfig, logger *logging.Logger) *Retriever {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retriever{
		docs:          docs,
		index:         index,
		threshold:     cfg.DistanceThreshold,
		maxCandidates: cfg.MaxCandidates,
		logger:        logger.Named("retriever"),
	}
}

// Retrieve returns the user's enabled chunks within the distance threshold,
// most similar first. When the user has nothing enabled it returns an empty
// result without touching the index. An empty userID searches every chunk.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, userID string) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	var ids []string
	if userID != "" {
		enabled, err := r.docs.EnabledDocuments(ctx, userID)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("loading enabled documents: %w", err)
		}
		span.SetAttributes(attribute.Int("enabled_documents", len(enabled)))
		if len(enabled) == 0 {
			r.logger.Debug(ctx, "no documents enabled for retrieval")
			return []Result{}, nil
		}
		ids = make([]string, len(enabled))
		for i, d := range enabled {
			ids[i] = d.ID
		}
	}
	span.SetAttributes(attribute.Bool("anonymous", userID == ""))

	matches, err := r.index.Search(ctx, vector, ids, r.threshold, r.maxCandidates)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("searching %s index: %w", r.index.Name(), err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Ordinal:    m.Ordinal,
			Content:    m.Content,
			Similarity: (1 - m.Distance) * 100,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	r.logger.Debug(ctx, "retrieved chunks",
		zap.Int("documents", len(ids)),
		zap.Bool("anonymous", ids == nil),
		zap.Int("results", len(results)),
		zap.Float64("threshold", r.threshold),
	)
	return results, nil
}

// Contents returns the chunk texts in order.
func Contents(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out
}
