package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

const (
	chromemCollection = "ragd_chunks"

	metaDocumentID = "document_id"
	metaOrdinal    = "ordinal"
)

// errNoEmbeddingFunc guards against chromem embedding text itself. Every
// record and query arrives with a precomputed vector.
var errNoEmbeddingFunc = errors.New("chromem index requires precomputed embeddings")

// ChromemIndex keeps chunk vectors in an embedded chromem-go database.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
	logger     *logging.Logger

	// chromem's Delete is not safe to interleave with AddDocuments on the
	// same ids.
	mu sync.Mutex
}

// NewChromemIndex opens the database at cfg.Path. An empty path keeps the
// index in memory only.
func NewChromemIndex(cfg config.ChromemConfig, dimension int, logger *logging.Logger) (*ChromemIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := config.ExpandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(chromemCollection, nil, noEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", chromemCollection, err)
	}

	x := &ChromemIndex{
		db:         db,
		collection: collection,
		dimension:  dimension,
		logger:     logger.Named("vectorstore.chromem"),
	}
	x.logger.Info(context.Background(), "chromem index initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.Int("vector_size", dimension),
		zap.Int("documents", collection.Count()),
	)
	return x, nil
}

func noEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// Name implements Index.
func (x *ChromemIndex) Name() string { return "chromem" }

// Add implements Index.
func (x *ChromemIndex) Add(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	start := time.Now()
	defer func() { observe(x.Name(), "add", start, err) }()

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if len(r.Vector) != x.dimension {
			return fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, r.ChunkID, len(r.Vector), x.dimension)
		}
		docs[i] = chromem.Document{
			ID:      r.ChunkID,
			Content: r.Content,
			Metadata: map[string]string{
				metaDocumentID: r.DocumentID,
				metaOrdinal:    strconv.Itoa(r.Ordinal),
			},
			Embedding: r.Vector,
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search implements Index. chromem filters by exact metadata match only, so
// the collection is queried once per document and the results are merged. A
// nil documentIDs is a single unfiltered query.
func (x *ChromemIndex) Search(ctx context.Context, vector []float32, documentIDs []string, maxDistance float64, limit int) (matches []Match, err error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return []Match{}, nil
	}
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("documents", len(documentIDs)), attribute.Int("limit", limit))

	start := time.Now()
	defer func() { observe(x.Name(), "search", start, err) }()

	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), x.dimension)
	}

	// chromem rejects nResults above the collection size.
	total := x.collection.Count()
	if total == 0 {
		return []Match{}, nil
	}
	n := total
	if limit > 0 && limit < n {
		n = limit
	}

	var filters []map[string]string
	if documentIDs == nil {
		filters = append(filters, nil)
	}
	for _, id := range documentIDs {
		filters = append(filters, map[string]string{metaDocumentID: id})
	}

	matches = []Match{}
	for _, where := range filters {
		results, err := x.collection.QueryEmbedding(ctx, vector, n, where, nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("querying document %s: %w", where[metaDocumentID], err)
		}
		for _, r := range results {
			d := 1 - float64(r.Similarity)
			if d > maxDistance {
				continue
			}
			ordinal, _ := strconv.Atoi(r.Metadata[metaOrdinal])
			matches = append(matches, Match{
				ChunkID:    r.ID,
				DocumentID: r.Metadata[metaDocumentID],
				Ordinal:    ordinal,
				Content:    r.Content,
				Distance:   d,
			})
		}
	}

	sortMatches(matches)
	matches = truncate(matches, limit)
	SearchMatches.WithLabelValues(x.Name()).Observe(float64(len(matches)))

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteDocument implements Index.
func (x *ChromemIndex) DeleteDocument(ctx context.Context, documentID string) (err error) {
	start := time.Now()
	defer func() { observe(x.Name(), "delete", start, err) }()

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	return nil
}

// Health implements Index.
func (x *ChromemIndex) Health(context.Context) error {
	if x.db.GetCollection(chromemCollection, noEmbeddingFunc) == nil {
		return fmt.Errorf("collection %s missing", chromemCollection)
	}
	return nil
}

// Close implements Index. Persistent databases write on every change.
func (x *ChromemIndex) Close() error { return nil }
