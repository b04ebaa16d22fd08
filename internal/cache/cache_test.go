package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeDocs struct {
	docs map[string][]store.EnabledDocument
	err  error
}

func (f *fakeDocs) EnabledDocuments(_ context.Context, userID string) ([]store.EnabledDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[userID], nil
}

type failingBackend struct {
	NoopStore
	err error
}

func (b failingBackend) Get(context.Context, string) (string, bool, error) { return "", false, b.err }

func (b failingBackend) Set(context.Context, string, string, time.Duration) error { return b.err }

func TestQueryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocs{docs: map[string][]store.EnabledDocument{
		"u1": {{ID: "d1", ContentHash: "h1"}},
	}}
	qc := New(docs, NewMemoryStore(10), time.Hour, nil)

	_, ok := qc.Get(ctx, "q", "u1")
	assert.False(t, ok)

	qc.Put(ctx, "q", "u1", "answer")
	got, ok := qc.Get(ctx, "q", "u1")
	assert.True(t, ok)
	assert.Equal(t, "answer", got)

	_, ok = qc.Get(ctx, "q", "u2")
	assert.False(t, ok, "answers are scoped to the user")
}

func TestQueryCache_EnablementChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocs{docs: map[string][]store.EnabledDocument{
		"u1": {{ID: "d1", ContentHash: "h1"}},
	}}
	qc := New(docs, NewMemoryStore(10), time.Hour, nil)
	qc.Put(ctx, "q", "u1", "answer")

	docs.docs["u1"] = append(docs.docs["u1"], store.EnabledDocument{ID: "d2", ContentHash: "h2"})
	_, ok := qc.Get(ctx, "q", "u1")
	assert.False(t, ok)

	docs.docs["u1"] = docs.docs["u1"][:1]
	got, ok := qc.Get(ctx, "q", "u1")
	assert.True(t, ok, "restoring the enabled set makes the entry reachable again")
	assert.Equal(t, "answer", got)
}

func TestQueryCache_FailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	tl := logging.NewTestLogger()

	tests := []struct {
		name    string
		docs    *fakeDocs
		backend Backend
	}{
		{name: "backend failure", docs: &fakeDocs{}, backend: failingBackend{err: errors.New("connection refused")}},
		{name: "document lookup failure", docs: &fakeDocs{err: errors.New("db locked")}, backend: NewMemoryStore(10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl.Reset()
			qc := New(tt.docs, tt.backend, time.Hour, tl.Logger)

			assert.NotPanics(t, func() { qc.Put(ctx, "q", "u1", "answer") })
			got, ok := qc.Get(ctx, "q", "u1")
			assert.False(t, ok)
			assert.Empty(t, got)
			tl.AssertLogged(t, zapcore.WarnLevel, "treating as miss")
		})
	}
}

func TestQueryCache_NilBackendIsNoop(t *testing.T) {
	qc := New(&fakeDocs{}, nil, time.Hour, nil)
	qc.Put(context.Background(), "q", "", "a")
	_, ok := qc.Get(context.Background(), "q", "")
	assert.False(t, ok)
	assert.Equal(t, "none", qc.Backend().Name())
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: "", want: "memory"},
		{provider: "memory", want: "memory"},
		{provider: "none", want: "none"},
		{provider: "redis", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.Default().Cache
			cfg.Provider = tt.provider
			qc, err := FromConfig(context.Background(), cfg, &fakeDocs{}, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer qc.Close()
			assert.Equal(t, tt.want, qc.Backend().Name())
			assert.NoError(t, qc.Health(context.Background()))
		})
	}
}
