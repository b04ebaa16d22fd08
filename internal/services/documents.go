package services

import (
	"context"
	"errors"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/search"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"go.uber.org/zap"
)

// Documents exposes a user's view of the content store.
type Documents struct {
	store    *store.Store
	keywords *search.Index
	logger   *logging.Logger
}

// NewDocuments creates the documents service. keywords may be nil when the
// keyword index is disabled.
func NewDocuments(st *store.Store, keywords *search.Index, logger *logging.Logger) (*Documents, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Documents{store: st, keywords: keywords, logger: logger.Named("documents")}, nil
}

// List returns the user's documents, newest first.
func (d *Documents) List(ctx context.Context, userID string) ([]store.UserDocument, error) {
	const op = "documents.List"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(op, "User id is required")
	}
	docs, err := d.store.ListUserDocuments(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(op, "Failed to list documents", err)
	}
	return docs, nil
}

// Toggle flips QA enablement on the given documents. Either all of them
// change or none do.
func (d *Documents) Toggle(ctx context.Context, userID string, documentIDs []string) error {
	const op = "documents.Toggle"
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation(op, "User id is required")
	}
	err := d.store.ToggleEnablement(ctx, userID, documentIDs)
	switch {
	case err == nil:
		d.logger.Info(ctx, "documents toggled", zap.Int("count", len(documentIDs)))
		return nil
	case errors.Is(err, store.ErrNoDocuments):
		return apperr.Validation(op, "No documents selected")
	case errors.Is(err, store.ErrNotOwned):
		return apperr.NotFound(op, "Document not found", err)
	default:
		return apperr.Storage(op, "Failed to update documents", err)
	}
}

// Search runs a keyword query over all of the user's documents, enabled or
// not.
func (d *Documents) Search(ctx context.Context, userID, text string, limit int) ([]search.Hit, error) {
	const op = "documents.Search"
	if d.keywords == nil {
		return nil, apperr.Unavailable(op, "Keyword search is disabled", nil)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(op, "User id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation(op, "Search query must not be empty")
	}

	docs, err := d.store.ListUserDocuments(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(op, "Failed to list documents", err)
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}

	hits, err := d.keywords.Search(ctx, text, ids, limit)
	if err != nil {
		return nil, apperr.Storage(op, "Failed to search documents", err)
	}
	return hits, nil
}
