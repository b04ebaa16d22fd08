package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var sqlTracer = otel.Tracer("ragd.vectorstore.sql")

const scanBatchSize = 500

// SQLIndex searches the embeddings persisted with each chunk by scanning the
// chunks of the requested documents. Vectors are written by the content
// store, so Add and DeleteDocument have nothing to do.
type SQLIndex struct {
	store  *store.Store
	logger *logging.Logger
}

// NewSQLIndex returns an index over st's chunk table.
func NewSQLIndex(st *store.Store, logger *logging.Logger) (*SQLIndex, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: content store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SQLIndex{store: st, logger: logger.Named("vectorstore.sql")}, nil
}

// Name implements Index.
func (x *SQLIndex) Name() string { return "sql" }

// Add implements Index. Chunk rows already carry their embedding.
func (x *SQLIndex) Add(context.Context, []Record) error { return nil }

// Search implements Index.
func (x *SQLIndex) Search(ctx context.Context, vector []float32, documentIDs []string, maxDistance float64, limit int) (matches []Match, err error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return []Match{}, nil
	}

	ctx, span := sqlTracer.Start(ctx, "SQLIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("documents", len(documentIDs)), attribute.Int("limit", limit))

	start := time.Now()
	defer func() { observe(x.Name(), "search", start, err) }()

	matches = []Match{}
	var batch []store.Chunk
	var scanned int
	q := x.store.DB().WithContext(ctx)
	if documentIDs != nil {
		q = q.Where("document_id IN ?", documentIDs)
	}
	res := q.FindInBatches(&batch, scanBatchSize, func(_ *gorm.DB, _ int) error {
		for _, c := range batch {
			scanned++
			d := CosineDistance(vector, c.Vector())
			if d > maxDistance {
				continue
			}
			matches = append(matches, Match{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Ordinal:    c.Ordinal,
				Content:    c.Content,
				Distance:   d,
			})
		}
		return ctx.Err()
	})
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, res.Error.Error())
		return nil, fmt.Errorf("scanning chunks: %w", res.Error)
	}

	sortMatches(matches)
	matches = truncate(matches, limit)
	SearchMatches.WithLabelValues(x.Name()).Observe(float64(len(matches)))

	span.SetAttributes(attribute.Int("scanned", scanned), attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	x.logger.Debug(ctx, "searched chunk embeddings",
		zap.Int("scanned", scanned),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// DeleteDocument implements Index. Chunks go with their document row.
func (x *SQLIndex) DeleteDocument(context.Context, string) error { return nil }

// Health implements Index.
func (x *SQLIndex) Health(ctx context.Context) error { return x.store.Ping(ctx) }

// Close implements Index. The content store is closed by its owner.
func (x *SQLIndex) Close() error { return nil }
