package cache

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/store"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded JetStream server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := StartEmbeddedServer(EmbeddedServerConfig{Port: -1, StoreDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv
}

func TestNATSStore_SetGet(t *testing.T) {
	srv := startTestNATSServer(t)
	ctx := context.Background()

	s, err := NewNATSStore(ctx, NATSConfig{URL: srv.ClientURL(), Bucket: "qa_cache", TTL: time.Hour}, nil)
	require.NoError(t, err)
	defer s.Close()

	key := Key("q", "u", []store.EnabledDocument{{ID: "a", ContentHash: "h"}})

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, "the answer", time.Hour))
	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "the answer", got)

	assert.NoError(t, s.Health(ctx))
	assert.Equal(t, "nats", s.Name())
}

func TestNATSStore_SharedAcrossConnections(t *testing.T) {
	srv := startTestNATSServer(t)
	ctx := context.Background()
	cfg := NATSConfig{URL: srv.ClientURL(), Bucket: "shared", TTL: time.Hour}

	first, err := NewNATSStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewNATSStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Set(ctx, "qa_cache:abc", "v", 0))
	got, ok, err := second.Get(ctx, "qa_cache:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestNewNATSStore_Validation(t *testing.T) {
	_, err := NewNATSStore(context.Background(), NATSConfig{Bucket: "b"}, nil)
	assert.Error(t, err)
	_, err = NewNATSStore(context.Background(), NATSConfig{URL: "nats://127.0.0.1:4222"}, nil)
	assert.Error(t, err, "bucket is required")
}

func TestNatsKey(t *testing.T) {
	assert.Equal(t, "qa_cache.0123abcd", natsKey("qa_cache:0123abcd"))
}

func TestFromConfig_EmbeddedNATS(t *testing.T) {
	cfg := config.Default().Cache
	cfg.Provider = "nats"
	cfg.NATS.URL = ""
	cfg.NATS.Embedded = true
	cfg.NATS.StoreDir = t.TempDir()

	qc, err := FromConfig(context.Background(), cfg, &fakeDocs{}, nil)
	require.NoError(t, err)
	defer qc.Close()

	assert.Equal(t, "nats", qc.Backend().Name())
	ctx := context.Background()
	qc.Put(ctx, "q", "", "a")
	got, ok := qc.Get(ctx, "q", "")
	assert.True(t, ok)
	assert.Equal(t, "a", got)
}
