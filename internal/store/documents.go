package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const chunkInsertBatch = 100

// IsDuplicate reports whether userID already has a document whose content
// hash is contentHash.
func (s *Store) IsDuplicate(ctx context.Context, contentHash, userID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&UserDocumentLink{}).
		Where("user_id = ? AND content_hash = ?", userID, contentHash).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	return n > 0, nil
}

// StoreDocument inserts a document row and returns its new id.
func (s *Store) StoreDocument(ctx context.Context, name, contentHash string) (string, error) {
	doc := Document{
		ID:          uuid.NewString(),
		Name:        name,
		ContentHash: contentHash,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return "", fmt.Errorf("storing document: %w", err)
	}
	return doc.ID, nil
}

// LinkUserDocument links userID to documentID with QA disabled. It fails
// with ErrConflict when the user already links a document with the same
// content hash.
func (s *Store) LinkUserDocument(ctx context.Context, userID, documentID string) error {
	db := s.db.WithContext(ctx)

	var doc Document
	if err := db.Select("id", "content_hash").Take(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, documentID)
		}
		return fmt.Errorf("loading document: %w", err)
	}

	dup, err := s.IsDuplicate(ctx, doc.ContentHash, userID)
	if err != nil {
		return err
	}
	if dup {
		return ErrConflict
	}

	link := UserDocumentLink{
		UserID:      userID,
		DocumentID:  documentID,
		ContentHash: doc.ContentHash,
		CreatedAt:   s.now(),
	}
	if err := db.Create(&link).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("linking document: %w", err)
	}
	return nil
}

// StoreChunks inserts one chunk per text with ordinal equal to its position.
// texts and embeddings must have the same length.
func (s *Store) StoreChunks(ctx context.Context, documentID string, texts []string, embeddings [][]float32) ([]Chunk, error) {
	if len(texts) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d texts, %d embeddings", ErrLengthMismatch, len(texts), len(embeddings))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	now := s.now()
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Ordinal:    i,
			Content:    text,
			Embedding:  EncodeEmbedding(embeddings[i]),
			CreatedAt:  now,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(chunks, chunkInsertBatch).Error; err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}
	return chunks, nil
}

// DocumentChunks returns a document's chunks in ordinal order.
func (s *Store) DocumentChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	var chunks []Chunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("ordinal").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	return chunks, nil
}

// ListUserDocuments returns the user's documents, newest first.
func (s *Store) ListUserDocuments(ctx context.Context, userID string) ([]UserDocument, error) {
	docs := []UserDocument{}
	err := s.db.WithContext(ctx).
		Table("documents").
		Select("documents.id, documents.name, documents.content_hash, documents.created_at, user_documents.enabled_for_qa").
		Joins("JOIN user_documents ON user_documents.document_id = documents.id").
		Where("user_documents.user_id = ?", userID).
		Order("documents.created_at DESC, documents.id").
		Scan(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// ToggleEnablement flips enabled_for_qa on each of the user's documents in
// documentIDs. If any id is not linked to the user nothing changes and the
// call fails with ErrNotOwned.
func (s *Store) ToggleEnablement(ctx context.Context, userID string, documentIDs []string) error {
	ids := uniqueStrings(documentIDs)
	if len(ids) == 0 {
		return ErrNoDocuments
	}

	return s.InTx(ctx, func(tx *Store) error {
		db := tx.db.WithContext(ctx)

		var owned []string
		err := db.Model(&UserDocumentLink{}).
			Where("user_id = ? AND document_id IN ?", userID, ids).
			Pluck("document_id", &owned).Error
		if err != nil {
			return fmt.Errorf("checking ownership: %w", err)
		}
		if len(owned) != len(ids) {
			missing := difference(ids, owned)
			return fmt.Errorf("%w: %v", ErrNotOwned, missing)
		}

		res := db.Model(&UserDocumentLink{}).
			Where("user_id = ? AND document_id IN ?", userID, ids).
			Update("enabled_for_qa", gorm.Expr("NOT enabled_for_qa"))
		if res.Error != nil {
			return fmt.Errorf("toggling documents: %w", res.Error)
		}

		tx.logger.Debug(ctx, "toggled documents",
			zap.Int("count", len(ids)),
			zap.Int64("rows", res.RowsAffected),
		)
		return nil
	})
}

// EnabledDocuments returns the user's QA-enabled documents sorted by id.
func (s *Store) EnabledDocuments(ctx context.Context, userID string) ([]EnabledDocument, error) {
	docs := []EnabledDocument{}
	err := s.db.WithContext(ctx).
		Table("user_documents").
		Select("document_id AS id, content_hash").
		Where("user_id = ? AND enabled_for_qa", userID).
		Order("document_id").
		Scan(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("loading enabled documents: %w", err)
	}
	return docs, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func difference(want, have []string) []string {
	got := make(map[string]struct{}, len(have))
	for _, h := range have {
		got[h] = struct{}{}
	}
	var missing []string
	for _, w := range want {
		if _, ok := got[w]; !ok {
			missing = append(missing, w)
		}
	}
	sort.Strings(missing)
	return missing
}
