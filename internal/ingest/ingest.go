// Package ingest turns an uploaded file into a stored, embedded and
// indexed document owned by a user.
//
// The pipeline is Validate, Extract, Redact, Dedup, Chunk, Embed, Persist.
// Nothing is written until Persist, which commits the document, the user
// link and every chunk in one transaction.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/sanitize"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/ingest"

var tracer = otel.Tracer(instrumentationName)

// Extractor converts file bytes to text by extension.
type Extractor interface {
	Extract(ctx context.Context, ext string, data []byte) (string, error)
}

// Chunker splits text into chunks.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder embeds chunk texts in one batched call.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Redactor scrubs secrets from extracted text.
type Redactor interface {
	Scrub(ctx context.Context, content string) (*secrets.Result, error)
}

// KeywordIndex receives chunks after they are committed.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, chunks []store.Chunk) error
}

// Request is one upload.
type Request struct {
	UserID   string
	Filename string
	Body     io.Reader
}

// Result identifies the stored document.
type Result struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// Deps are the collaborators of a Service. Redactor and Keywords are optional.
type Deps struct {
	Store     *store.Store
	Index     vectorstore.Index
	Extractor Extractor
	Chunker   Chunker
	Embedder  Embedder
	Redactor  Redactor
	Keywords  KeywordIndex
}

// Service runs the ingestion pipeline.
type Service struct {
	deps     Deps
	allowed  map[string]bool
	types    []string
	maxSize  int64
	logger   *logging.Logger
	duration metric.Float64Histogram
	chunks   metric.Int64Counter
}

// New validates deps and returns a Service enforcing cfg's limits.
func New(deps Deps, cfg config.IngestionConfig, logger *logging.Logger) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("ingest: store is required")
	case deps.Index == nil:
		return nil, errors.New("ingest: vector index is required")
	case deps.Extractor == nil:
		return nil, errors.New("ingest: extractor is required")
	case deps.Chunker == nil:
		return nil, errors.New("ingest: chunker is required")
	case deps.Embedder == nil:
		return nil, errors.New("ingest: embedder is required")
	}
	if cfg.MaxDocumentSize <= 0 {
		return nil, errors.New("ingest: max document size must be positive")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	types := config.NormalizeExtensions(cfg.SupportedFileTypes)
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}

	s := &Service{
		deps:    deps,
		allowed: allowed,
		types:   types,
		maxSize: cfg.MaxDocumentSize,
		logger:  logger.Named("ingest"),
	}
	meter := otel.Meter(instrumentationName)
	var err error
	s.duration, err = meter.Float64Histogram("ragd.ingest.duration",
		metric.WithDescription("Ingestion duration by outcome"),
		metric.WithUnit("s"))
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create ingest duration histogram", zap.Error(err))
	}
	s.chunks, err = meter.Int64Counter("ragd.ingest.chunks_total",
		metric.WithDescription("Chunks stored by ingestion"))
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create ingest chunk counter", zap.Error(err))
	}
	return s, nil
}

// SupportedTypes returns the accepted extensions.
func (s *Service) SupportedTypes() []string {
	return append([]string(nil), s.types...)
}

// MaxDocumentSize returns the largest accepted upload in bytes.
func (s *Service) MaxDocumentSize() int64 {
	return s.maxSize
}

// Ingest runs the pipeline for req. Errors are *apperr.Error values.
func (s *Service) Ingest(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	ctx = logging.WithUserID(ctx, req.UserID)
	ctx, span := tracer.Start(ctx, "Ingest.Ingest")
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = strings.ToLower(string(apperr.KindOf(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.MessageOf(err))
		}
		if s.duration != nil {
			s.duration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("outcome", outcome)))
		}
		span.End()
	}()

	req.Filename = sanitize.DocumentName(req.Filename)
	data, ext, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("file.ext", ext), attribute.Int("file.size", len(data)))

	text, err := s.deps.Extractor.Extract(ctx, ext, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			return nil, apperr.New(apperr.KindValidation, "ingest.extract", s.unsupportedMessage(), err)
		}
		return nil, apperr.File("ingest.extract", "Error extracting text from document", err)
	}

	text, err = s.redact(ctx, text)
	if err != nil {
		return nil, err
	}

	hash := Fingerprint(text)
	dup, err := s.deps.Store.IsDuplicate(ctx, hash, req.UserID)
	if err != nil {
		return nil, apperr.Storage("ingest.dedup", "Error checking for duplicate document", err)
	}
	if dup {
		return nil, apperr.Conflict("ingest.dedup", "This document has already been uploaded")
	}

	texts := s.deps.Chunker.Chunk(text)
	if len(texts) == 0 {
		return nil, apperr.Validation("ingest.chunk", "Document is empty or could not be processed")
	}

	vectors, err := s.deps.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperr.Storage("ingest.embed", "Error generating embeddings", err)
	}

	docID, stored, err := s.persist(ctx, req, hash, texts, vectors)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithDocumentID(ctx, docID)
	span.SetAttributes(attribute.String("document.id", docID), attribute.Int("chunks", len(stored)))

	if s.deps.Keywords != nil {
		if err := s.deps.Keywords.IndexChunks(ctx, stored); err != nil {
			s.logger.Warn(ctx, "keyword indexing failed", zap.Error(err))
		}
	}
	if s.chunks != nil {
		s.chunks.Add(ctx, int64(len(stored)))
	}

	s.logger.Info(ctx, "document ingested",
		zap.String("name", req.Filename),
		zap.Int("chunks", len(stored)),
		zap.Duration("duration", time.Since(start)),
	)
	return &Result{DocumentID: docID, Chunks: len(stored)}, nil
}

// validate checks the request and reads the body, stopping as soon as it
// exceeds the size limit.
func (s *Service) validate(req Request) ([]byte, string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, "", apperr.Validation("ingest.validate", "User id is required")
	}
	if strings.TrimSpace(req.Filename) == "" || req.Body == nil {
		return nil, "", apperr.Validation("ingest.validate", "No file provided")
	}
	ext := extract.Ext(req.Filename)
	if !s.allowed[ext] {
		return nil, "", apperr.Validation("ingest.validate", s.unsupportedMessage())
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, s.maxSize+1))
	if err != nil {
		return nil, "", apperr.File("ingest.validate", "Error reading uploaded file", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, "", apperr.Validation("ingest.validate",
			fmt.Sprintf("File size exceeds maximum limit of %d bytes", s.maxSize))
	}
	return data, ext, nil
}

func (s *Service) unsupportedMessage() string {
	return "Unsupported file type. Supported types: " + strings.Join(s.types, ", ")
}

func (s *Service) redact(ctx context.Context, text string) (string, error) {
	if s.deps.Redactor == nil {
		return text, nil
	}
	res, err := s.deps.Redactor.Scrub(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperr.Storage("ingest.redact", "Ingestion canceled", err)
		}
		return "", apperr.File("ingest.redact", "Error scanning document for secrets", err)
	}
	if res.HasFindings() {
		s.logger.Info(ctx, "redacted secrets from document",
			zap.Int("findings", len(res.Findings)),
			zap.Strings("rules", res.RuleIDs()),
		)
	}
	return res.Content, nil
}

// persist commits the document, its link and its chunks, and adds the
// chunks to the vector index inside the same transaction. If the commit
// fails after the index accepted the chunks, they are removed again.
func (s *Service) persist(ctx context.Context, req Request, hash string, texts []string, vectors [][]float32) (string, []store.Chunk, error) {
	ctx, span := tracer.Start(ctx, "Ingest.persist")
	defer span.End()

	var (
		docID   string
		stored  []store.Chunk
		indexed bool
	)
	err := s.deps.Store.InTx(ctx, func(tx *store.Store) error {
		id, err := tx.StoreDocument(ctx, req.Filename, hash)
		if err != nil {
			return apperr.Storage("ingest.persist", "Error storing document", err)
		}
		docID = id

		if err := tx.LinkUserDocument(ctx, req.UserID, id); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Conflict("ingest.persist", "This document has already been uploaded")
			}
			return apperr.Storage("ingest.persist", "Error creating document relationship", err)
		}

		stored, err = tx.StoreChunks(ctx, id, texts, vectors)
		if err != nil {
			return apperr.Storage("ingest.persist", "Error storing document chunks", err)
		}

		records := make([]vectorstore.Record, len(stored))
		for i, c := range stored {
			records[i] = vectorstore.Record{
				ChunkID:    c.ID,
				DocumentID: id,
				Ordinal:    c.Ordinal,
				Content:    c.Content,
				Vector:     vectors[i],
			}
		}
		if err := s.deps.Index.Add(ctx, records); err != nil {
			return apperr.Storage("ingest.persist", "Error indexing document chunks", err)
		}
		indexed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if indexed && docID != "" {
			if derr := s.deps.Index.DeleteDocument(context.WithoutCancel(ctx), docID); derr != nil {
				s.logger.Warn(ctx, "failed to remove vectors of rolled back document",
					zap.String("document_id", docID), zap.Error(derr))
			}
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return "", nil, err
		}
		return "", nil, apperr.Storage("ingest.persist", "Error storing document", err)
	}
	return docID, stored, nil
}

// Fingerprint is the hex sha256 of the extracted text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
