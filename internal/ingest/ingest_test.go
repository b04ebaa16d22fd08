package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i), 0}
	}
	return out, nil
}

// recordingIndex wraps the SQL index and can fail Add.
type recordingIndex struct {
	vectorstore.Index
	addErr  error
	added   []vectorstore.Record
	deleted []string
}

func (r *recordingIndex) Add(ctx context.Context, records []vectorstore.Record) error {
	if r.addErr != nil {
		return r.addErr
	}
	r.added = append(r.added, records...)
	return r.Index.Add(ctx, records)
}

func (r *recordingIndex) DeleteDocument(ctx context.Context, documentID string) error {
	r.deleted = append(r.deleted, documentID)
	return r.Index.DeleteDocument(ctx, documentID)
}

type fakeRedactor struct{}

func (fakeRedactor) Scrub(_ context.Context, content string) (*secrets.Result, error) {
	return &secrets.Result{Content: strings.ReplaceAll(content, "hunter2", "[REDACTED]")}, nil
}

type fakeKeywords struct {
	err     error
	indexed []store.Chunk
}

func (f *fakeKeywords) IndexChunks(_ context.Context, chunks []store.Chunk) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, chunks...)
	return nil
}

type fixture struct {
	svc      *Service
	store    *store.Store
	index    *recordingIndex
	embedder *fakeEmbedder
	keywords *fakeKeywords
	logs     *logging.TestLogger
}

func newFixture(t *testing.T, mutate func(*Deps, *config.IngestionConfig)) *fixture {
	t.Helper()
	st, err := store.Open(config.StorageConfig{Path: filepath.Join(t.TempDir(), "ragd.db")}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ch, err := chunker.New(config.StrategyParagraph, 512, 0, nil)
	require.NoError(t, err)
	sqlIndex, err := vectorstore.NewSQLIndex(st, logging.NewNop())
	require.NoError(t, err)

	f := &fixture{
		store:    st,
		index:    &recordingIndex{Index: sqlIndex},
		embedder: &fakeEmbedder{},
		keywords: &fakeKeywords{},
		logs:     logging.NewTestLogger(),
	}
	deps := Deps{
		Store:     st,
		Index:     f.index,
		Extractor: extract.NewRegistry(),
		Chunker:   ch,
		Embedder:  f.embedder,
		Keywords:  f.keywords,
	}
	cfg := config.Default().Ingestion
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	f.svc, err = New(deps, cfg, f.logs.Logger)
	require.NoError(t, err)
	return f
}

func upload(user, name, body string) Request {
	return Request{UserID: user, Filename: name, Body: strings.NewReader(body)}
}

func TestIngest_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, upload("alice", "notes.txt", "first line\nsecond line\n\nthird line"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 1, f.embedder.calls, "chunks are embedded in one batched call")

	docs, err := f.store.ListUserDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, res.DocumentID, docs[0].ID)
	assert.Equal(t, "notes.txt", docs[0].Name)
	assert.False(t, docs[0].EnabledForQA, "new documents start disabled")

	chunks, err := f.store.DocumentChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
	assert.Equal(t, "second line", chunks[1].Content)

	assert.Len(t, f.index.added, 3)
	assert.Len(t, f.keywords.indexed, 3)
	f.logs.AssertLogged(t, zapcore.InfoLevel, "document ingested")
}

func TestIngest_StoresBaseName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, upload("alice", "../uploads/q3\x00-notes.md", "revenue grew"))
	require.NoError(t, err)

	docs, err := f.store.ListUserDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "q3-notes.md", docs[0].Name)
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		kind    apperr.Kind
		message string
	}{
		{name: "missing user", req: upload("", "a.txt", "x"), kind: apperr.KindValidation, message: "User id is required"},
		{name: "missing filename", req: upload("alice", "", "x"), kind: apperr.KindValidation, message: "No file provided"},
		{name: "missing body", req: Request{UserID: "alice", Filename: "a.txt"}, kind: apperr.KindValidation, message: "No file provided"},
		{name: "unsupported extension", req: upload("alice", "a.exe", "x"), kind: apperr.KindValidation, message: "Unsupported file type. Supported types: txt, md, pdf, html, docx, xlsx"},
		{name: "no extension", req: upload("alice", "README", "x"), kind: apperr.KindValidation, message: "Unsupported file type"},
		{name: "oversize", req: upload("alice", "a.txt", strings.Repeat("a", 65)), kind: apperr.KindValidation, message: "File size exceeds maximum limit of 64 bytes"},
		{name: "invalid utf8", req: upload("alice", "a.txt", "\xff\xfe\xfd"), kind: apperr.KindFile, message: "Error extracting text from document"},
		{name: "corrupt docx", req: upload("alice", "a.docx", "not a zip"), kind: apperr.KindFile, message: "Error extracting text from document"},
		{name: "empty document", req: upload("alice", "a.txt", "  \n\n "), kind: apperr.KindValidation, message: "Document is empty or could not be processed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(_ *Deps, c *config.IngestionConfig) { c.MaxDocumentSize = 64 })
			_, err := f.svc.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, apperr.MessageOf(err), tt.message)
			assert.Zero(t, f.embedder.calls)

			docs, err := f.store.ListUserDocuments(context.Background(), "alice")
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestIngest_AtSizeLimit(t *testing.T) {
	f := newFixture(t, func(_ *Deps, c *config.IngestionConfig) { c.MaxDocumentSize = 64 })
	_, err := f.svc.Ingest(context.Background(), upload("alice", "a.txt", strings.Repeat("a", 64)))
	require.NoError(t, err)
}

// countingReader counts the bytes read from it.
type countingReader struct {
	r    io.Reader
	read int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	return n, err
}

func TestIngest_OversizeStopsReading(t *testing.T) {
	f := newFixture(t, func(_ *Deps, c *config.IngestionConfig) { c.MaxDocumentSize = 1024 })
	body := &countingReader{r: bytes.NewReader(bytes.Repeat([]byte("a"), 1<<20))}

	_, err := f.svc.Ingest(context.Background(), Request{UserID: "alice", Filename: "big.txt", Body: body})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.LessOrEqual(t, body.read, int64(1025+32*1024), "reading stops shortly after the limit")
}

func TestIngest_DuplicatePerUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, upload("alice", "a.txt", "same content"))
	require.NoError(t, err)

	_, err = f.svc.Ingest(ctx, upload("alice", "renamed.md", "same content"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, "This document has already been uploaded", apperr.MessageOf(err))

	docs, err := f.store.ListUserDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "a conflict leaves no residue")

	second, err := f.svc.Ingest(ctx, upload("bob", "a.txt", "same content"))
	require.NoError(t, err, "another user may upload the same content")
	assert.NotEqual(t, first.DocumentID, second.DocumentID)
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.embedder.err = errors.New("model unavailable")

	_, err := f.svc.Ingest(context.Background(), upload("alice", "a.txt", "text"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Equal(t, "Error generating embeddings", apperr.MessageOf(err))

	docs, err := f.store.ListUserDocuments(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngest_IndexFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.index.addErr = errors.New("qdrant down")

	_, err := f.svc.Ingest(context.Background(), upload("alice", "a.txt", "one\ntwo"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))

	docs, err := f.store.ListUserDocuments(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, docs, "the transaction is rolled back")
	assert.Empty(t, f.keywords.indexed)

	dup, err := f.store.IsDuplicate(context.Background(), Fingerprint("one\ntwo"), "alice")
	require.NoError(t, err)
	assert.False(t, dup, "a failed upload can be retried")
}

func TestIngest_KeywordFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.keywords.err = errors.New("disk full")

	res, err := f.svc.Ingest(context.Background(), upload("alice", "a.txt", "text"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	f.logs.AssertLogged(t, zapcore.WarnLevel, "keyword indexing failed")
}

func TestIngest_RedactsBeforeStoring(t *testing.T) {
	f := newFixture(t, func(d *Deps, _ *config.IngestionConfig) { d.Redactor = fakeRedactor{} })
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, upload("alice", "a.txt", "password is hunter2"))
	require.NoError(t, err)

	chunks, err := f.store.DocumentChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "password is [REDACTED]", chunks[0].Content)

	dup, err := f.store.IsDuplicate(ctx, Fingerprint("password is [REDACTED]"), "alice")
	require.NoError(t, err)
	assert.True(t, dup, "the fingerprint is taken over the redacted text")
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, config.Default().Ingestion, nil)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(""))
	assert.Equal(t, Fingerprint("a"), Fingerprint("a"))
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}
