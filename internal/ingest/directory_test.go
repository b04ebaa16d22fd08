package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func TestIngestDir(t *testing.T) {
	f := newFixture(t, nil)
	root := writeTree(t, map[string]string{
		"a.txt":          "quarterly revenue grew",
		"b.md":           "# Handbook\n\nWe use a CRM.",
		"drafts/c.txt":   "not ready",
		"dup.txt":        "quarterly revenue grew",
		"empty.txt":      "   \n",
		"report.odt":     "PK",
		"notes/meet.txt": "standup notes",
	})
	rules, err := ignore.NewMatcher([]string{"drafts/"})
	require.NoError(t, err)

	res, err := f.svc.IngestDir(context.Background(), "alice", root, rules)
	require.NoError(t, err)

	var ingested []string
	for _, r := range res.Ingested {
		ingested = append(ingested, filepath.ToSlash(r.Path))
		assert.NotEmpty(t, r.DocumentID)
		assert.Positive(t, r.Chunks)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.md", "notes/meet.txt"}, ingested)

	skipped := map[string]string{}
	for _, s := range res.Skipped {
		skipped[s.Path] = s.Reason
	}
	assert.Equal(t, map[string]string{
		"dup.txt":   "This document has already been uploaded",
		"empty.txt": "Document is empty or could not be processed",
	}, skipped)

	docs, err := f.store.ListUserDocuments(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	f.logs.AssertLogged(t, zapcore.InfoLevel, "directory ingested")
}

func TestIngestDir_StopsOnStorageFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.embedder.err = errors.New("model unavailable")
	root := writeTree(t, map[string]string{"a.txt": "one", "b.txt": "two"})

	res, err := f.svc.IngestDir(context.Background(), "alice", root, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	require.NotNil(t, res)
	assert.Empty(t, res.Ingested)
	assert.Equal(t, 1, f.embedder.calls, "walk stops at the first hard failure")
}

func TestIngestDir_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	file := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name     string
		user     string
		root     string
		wantKind apperr.Kind
		wantMsg  string
	}{
		{"blank user", " ", t.TempDir(), apperr.KindValidation, "User id is required"},
		{"missing root", "alice", filepath.Join(t.TempDir(), "nope"), apperr.KindFile, "Could not open directory"},
		{"file root", "alice", file, apperr.KindValidation, "Path is not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.IngestDir(context.Background(), tt.user, tt.root, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperr.MessageOf(err))
		})
	}
}

func TestIngestDir_Canceled(t *testing.T) {
	f := newFixture(t, nil)
	root := writeTree(t, map[string]string{"a.txt": "one"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.IngestDir(ctx, "alice", root, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
