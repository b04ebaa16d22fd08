package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retry"
	"github.com/fyrsmithlabs/ragd/internal/sanitize"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("ragd.vectorstore.qdrant")

const (
	payloadDocumentID = "document_id"
	payloadOrdinal    = "ordinal"
	payloadContent    = "content"

	// qdrant needs an explicit limit; used when the caller passes none.
	maxQdrantResults = 10000

	maxMessageSize = 50 * 1024 * 1024
)

// IsTransientError reports gRPC failures worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex stores chunk vectors in a Qdrant collection using cosine
// distance. Each point carries document_id, ordinal and content payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	policy     retry.Policy
	logger     *logging.Logger
}

// NewQdrantIndex connects to Qdrant, checks its health and creates the
// collection and its document_id payload index when missing.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, dimension int, logger *logging.Logger) (*QdrantIndex, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, cfg.Port)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("vectorstore.qdrant")

	collection := sanitize.Identifier(cfg.Collection)
	if collection != cfg.Collection {
		logger.Warn(ctx, "qdrant collection name normalized",
			zap.String("configured", cfg.Collection), zap.String("collection", collection))
	}

	if !cfg.UseTLS {
		logger.Warn(ctx, "qdrant gRPC using plaintext, TLS disabled", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey.Value(),
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	x := &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
		policy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2,
		},
		logger: logger,
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := x.Health(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := x.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return x, nil
}

func (x *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", x.collection, err)
	}
	if exists {
		return nil
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(x.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", x.collection, err)
	}

	_, err = x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: x.collection,
		FieldName:      payloadDocumentID,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
	})
	if err != nil {
		return fmt.Errorf("indexing %s on %s: %w", payloadDocumentID, x.collection, err)
	}

	x.logger.Info(ctx, "created qdrant collection",
		zap.String("collection", x.collection),
		zap.Int("vector_size", x.dimension),
	)
	return nil
}

// do runs op under the retry policy, giving up at once on non-transient
// gRPC errors.
func (x *QdrantIndex) do(ctx context.Context, op func(context.Context) error) error {
	return x.policy.Do(ctx, x.logger, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && !IsTransientError(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

// Name implements Index.
func (x *QdrantIndex) Name() string { return "qdrant" }

// Add implements Index.
func (x *QdrantIndex) Add(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Add")
	defer span.End()
	span.SetAttributes(attribute.String("collection", x.collection), attribute.Int("records", len(records)))

	start := time.Now()
	defer func() { observe(x.Name(), "add", start, err) }()

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != x.dimension {
			return fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, r.ChunkID, len(r.Vector), x.dimension)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ChunkID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: recordPayload(r),
		}
	}

	err = x.do(ctx, func(ctx context.Context) error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: x.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", x.collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search implements Index. Qdrant's cosine score is a similarity, so the
// distance bound becomes a score threshold of 1 - maxDistance.
func (x *QdrantIndex) Search(ctx context.Context, vector []float32, documentIDs []string, maxDistance float64, limit int) (matches []Match, err error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return []Match{}, nil
	}
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", x.collection), attribute.Int("documents", len(documentIDs)))

	start := time.Now()
	defer func() { observe(x.Name(), "search", start, err) }()

	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), x.dimension)
	}
	n := uint64(maxQdrantResults)
	if limit > 0 && limit < maxQdrantResults {
		n = uint64(limit)
	}

	var points []*qdrant.ScoredPoint
	err = x.do(ctx, func(ctx context.Context) error {
		res, err := x.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: x.collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         documentFilter(documentIDs),
			ScoreThreshold: qdrant.PtrOf(float32(1 - maxDistance)),
			Limit:          qdrant.PtrOf(n),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", x.collection, err)
	}

	matches = make([]Match, 0, len(points))
	for _, p := range points {
		m := pointMatch(p)
		// float32 scores can land just past the threshold.
		if m.Distance > maxDistance {
			continue
		}
		matches = append(matches, m)
	}
	sortMatches(matches)
	SearchMatches.WithLabelValues(x.Name()).Observe(float64(len(matches)))

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteDocument implements Index.
func (x *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) (err error) {
	start := time.Now()
	defer func() { observe(x.Name(), "delete", start, err) }()

	err = x.do(ctx, func(ctx context.Context) error {
		_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: x.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: documentFilter([]string{documentID}),
				},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	return nil
}

// Health implements Index.
func (x *QdrantIndex) Health(ctx context.Context) error {
	if _, err := x.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	return x.client.Close()
}

// documentFilter matches points whose document_id is any of ids.
// documentFilter restricts a query to ids. nil means no restriction.
func documentFilter(ids []string) *qdrant.Filter {
	if ids == nil {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: payloadDocumentID,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{
								Keywords: &qdrant.RepeatedStrings{Strings: ids},
							},
						},
					},
				},
			},
		},
	}
}

func recordPayload(r Record) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		payloadDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: r.DocumentID}},
		payloadOrdinal:    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.Ordinal)}},
		payloadContent:    {Kind: &qdrant.Value_StringValue{StringValue: r.Content}},
	}
}

func pointMatch(p *qdrant.ScoredPoint) Match {
	m := Match{
		ChunkID:  p.GetId().GetUuid(),
		Distance: 1 - float64(p.GetScore()),
	}
	payload := p.GetPayload()
	m.DocumentID = payload[payloadDocumentID].GetStringValue()
	m.Ordinal = int(payload[payloadOrdinal].GetIntegerValue())
	m.Content = payload[payloadContent].GetStringValue()
	return m
}
