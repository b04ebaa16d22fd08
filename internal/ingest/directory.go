package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// FileResult is one document stored by IngestDir.
type FileResult struct {
	Path       string `json:"path"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// SkippedFile is a file IngestDir rejected without aborting.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// DirResult summarizes a directory ingestion.
type DirResult struct {
	Ingested []FileResult  `json:"ingested"`
	Skipped  []SkippedFile `json:"skipped"`
}

// IngestDir ingests every supported file under root for userID. Paths
// matched by ignore rules and files with unsupported extensions are passed
// over silently. Validation and duplicate failures are recorded in Skipped;
// any other failure stops the walk and is returned with the partial result.
func (s *Service) IngestDir(ctx context.Context, userID, root string, rules *ignore.Matcher) (*DirResult, error) {
	const op = "ingest.dir"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(op, "User id is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.File(op, "Could not open directory", err)
	}
	if !info.IsDir() {
		return nil, apperr.Validation(op, "Path is not a directory")
	}

	ctx = logging.WithUserID(ctx, userID)
	res := &DirResult{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if rules.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rules.Match(rel, false) || !s.allowed[extract.Ext(rel)] {
			return nil
		}

		fr, err := s.ingestFile(ctx, userID, path)
		switch {
		case err == nil:
			fr.Path = rel
			res.Ingested = append(res.Ingested, *fr)
			return nil
		case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindConflict):
			res.Skipped = append(res.Skipped, SkippedFile{Path: rel, Reason: apperr.MessageOf(err)})
			return nil
		default:
			return fmt.Errorf("%s: %w", rel, err)
		}
	})

	s.logger.Info(ctx, "directory ingested",
		zap.String("root", root),
		zap.Int("ingested", len(res.Ingested)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Bool("complete", err == nil),
	)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return res, err
		}
		return res, apperr.File(op, "Directory ingestion stopped", err)
	}
	return res, nil
}

func (s *Service) ingestFile(ctx context.Context, userID, path string) (*FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.File("ingest.dir", "Could not open file", err)
	}
	defer f.Close()

	r, err := s.Ingest(ctx, Request{UserID: userID, Filename: filepath.Base(path), Body: f})
	if err != nil {
		return nil, err
	}
	return &FileResult{DocumentID: r.DocumentID, Chunks: r.Chunks}, nil
}
