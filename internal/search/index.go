// Package search keeps a bleve keyword index over document chunks, for
// exact-term lookups that similarity search misses.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"go.uber.org/zap"
)

const (
	fieldDocumentID = "DocumentID"
	fieldOrdinal    = "Ordinal"
	fieldContent    = "Content"

	// DefaultLimit caps hits when the caller gives no limit.
	DefaultLimit = 10
	maxLimit     = 100
	deletePage   = 1000
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("keyword index closed")

// indexedChunk is the document shape stored in bleve.
type indexedChunk struct {
	DocumentID string
	Ordinal    int
	Content    string
}

// Hit is a keyword match.
type Hit struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Ordinal    int      `json:"ordinal"`
	Content    string   `json:"content"`
	Score      float64  `json:"score"`
	Fragments  []string `json:"fragments,omitempty"`
}

// Index wraps a bleve index of chunks.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	logger *logging.Logger
}

// Open opens or creates the index at path. An empty path keeps the index
// in memory.
func Open(path string, logger *logging.Logger) (*Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("search")

	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}

	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	idx, err := bleve.Open(expanded)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if err := os.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		idx, err = bleve.New(expanded, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		logger.Info(context.Background(), "created keyword index", zap.String("path", expanded))
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx, logger: logger}, nil
}

// FromConfig opens the configured index, or returns nil when disabled.
func FromConfig(cfg config.SearchConfig, logger *logging.Logger) (*Index, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return Open(cfg.Path, logger)
}

// buildIndexMapping analyzes content as English text and keeps document
// ids whole so they can be filtered on exactly.
func buildIndexMapping() mapping.IndexMapping {
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = "en"
	contentField.IncludeTermVectors = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(fieldDocumentID, bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt(fieldOrdinal, bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt(fieldContent, contentField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// IndexChunks adds or replaces chunks in one batch.
func (i *Index) IndexChunks(ctx context.Context, chunks []store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return ErrClosed
	}

	batch := i.index.NewBatch()
	for _, c := range chunks {
		doc := indexedChunk{DocumentID: c.DocumentID, Ordinal: c.Ordinal, Content: c.Content}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", c.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	i.logger.Debug(ctx, "indexed chunks", zap.Int("count", len(chunks)))
	return nil
}

// Search matches text against chunk content, restricted to documentIDs.
// No document ids means no hits.
func (i *Index) Search(ctx context.Context, text string, documentIDs []string, limit int) ([]Hit, error) {
	if len(documentIDs) == 0 || text == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return nil, ErrClosed
	}

	match := bleve.NewMatchQuery(text)
	match.SetField(fieldContent)
	q := bleve.NewConjunctionQuery(match, documentFilter(documentIDs))

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldDocumentID, fieldOrdinal, fieldContent}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(fieldContent)

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ChunkID: h.ID, Score: h.Score, Fragments: h.Fragments[fieldContent]}
		if v, ok := h.Fields[fieldDocumentID].(string); ok {
			hit.DocumentID = v
		}
		if v, ok := h.Fields[fieldOrdinal].(float64); ok {
			hit.Ordinal = int(v)
		}
		if v, ok := h.Fields[fieldContent].(string); ok {
			hit.Content = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteDocument removes every chunk of documentID.
func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return ErrClosed
	}

	for {
		req := bleve.NewSearchRequestOptions(documentFilter([]string{documentID}), deletePage, 0, false)
		res, err := i.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find chunks of %s: %w", documentID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := i.index.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
	}
}

// Count returns the number of indexed chunks.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.index == nil {
		return 0, ErrClosed
	}
	return i.index.DocCount()
}

// Close closes the index. Further calls return ErrClosed.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.index == nil {
		return nil
	}
	err := i.index.Close()
	i.index = nil
	return err
}

func documentFilter(documentIDs []string) query.Query {
	terms := make([]query.Query, len(documentIDs))
	for n, id := range documentIDs {
		t := bleve.NewTermQuery(id)
		t.SetField(fieldDocumentID)
		terms[n] = t
	}
	return bleve.NewDisjunctionQuery(terms...)
}
