// Package cache stores generated answers keyed by the question, the user,
// and the state of the user's enabled documents. Changing which documents
// are enabled, or their content, yields a new key, so stale answers become
// unreachable without explicit invalidation.
//
// Every failure in this package is absorbed and logged. A broken cache
// degrades to a miss and never fails a query.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/cache"

// DocumentSource lists the documents a user has enabled.
type DocumentSource interface {
	EnabledDocuments(ctx context.Context, userID string) ([]store.EnabledDocument, error)
}

// QueryCache wraps a Backend with key derivation and error absorption.
type QueryCache struct {
	docs     DocumentSource
	backend  Backend
	ttl      time.Duration
	logger   *logging.Logger
	requests metric.Int64Counter
}

// New returns a QueryCache writing entries with the given ttl.
func New(docs DocumentSource, backend Backend, ttl time.Duration, logger *logging.Logger) *QueryCache {
	if logger == nil {
		logger = logging.NewNop()
	}
	if backend == nil {
		backend = NoopStore{}
	}
	c := &QueryCache{
		docs:    docs,
		backend: backend,
		ttl:     ttl,
		logger:  logger.Named("cache"),
	}
	var err error
	c.requests, err = otel.Meter(instrumentationName).Int64Counter("ragd.cache.requests_total",
		metric.WithDescription("Cache lookups and writes by outcome"))
	if err != nil {
		c.logger.Warn(context.Background(), "failed to create cache counter", zap.Error(err))
	}
	return c
}

// FromConfig builds the configured backend. Provider "nats" with Embedded
// set starts an in-process server that is shut down on Close.
func FromConfig(ctx context.Context, cfg config.CacheConfig, docs DocumentSource, logger *logging.Logger) (*QueryCache, error) {
	var backend Backend
	switch cfg.Provider {
	case "", "memory":
		backend = NewMemoryStore(cfg.MaxEntries)
	case "none":
		backend = NoopStore{}
	case "nats":
		url := cfg.NATS.URL
		var onClose func()
		if cfg.NATS.Embedded {
			srv, err := StartEmbeddedServer(EmbeddedServerConfig{StoreDir: cfg.NATS.StoreDir})
			if err != nil {
				return nil, err
			}
			url = srv.ClientURL()
			onClose = func() {
				srv.Shutdown()
				srv.WaitForShutdown()
			}
		}
		s, err := NewNATSStore(ctx, NATSConfig{
			URL:    url,
			Bucket: cfg.NATS.Bucket,
			TTL:    cfg.TTL.Duration(),
		}, logger)
		if err != nil {
			if onClose != nil {
				onClose()
			}
			return nil, err
		}
		s.onClose = onClose
		backend = s
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
	return New(docs, backend, cfg.TTL.Duration(), logger), nil
}

// Key derives the cache key for question and userID, loading the user's
// enabled documents when a user is given.
func (c *QueryCache) Key(ctx context.Context, question, userID string) (string, error) {
	if userID == "" {
		return Key(question, "", nil), nil
	}
	docs, err := c.docs.EnabledDocuments(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading enabled documents: %w", err)
	}
	return Key(question, userID, docs), nil
}

// Get returns a cached answer. Any failure is logged and reported as a miss.
func (c *QueryCache) Get(ctx context.Context, question, userID string) (string, bool) {
	key, err := c.Key(ctx, question, userID)
	if err != nil {
		c.logger.Warn(ctx, "cache key derivation failed, treating as miss", zap.Error(err))
		c.record(ctx, "get", "error")
		return "", false
	}
	answer, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "cache lookup failed, treating as miss",
			zap.String("backend", c.backend.Name()),
			zap.Error(err),
		)
		c.record(ctx, "get", "error")
		return "", false
	}
	if !ok {
		c.record(ctx, "get", "miss")
		return "", false
	}
	c.logger.Debug(ctx, "cache hit", zap.String("key", key))
	c.record(ctx, "get", "hit")
	return answer, true
}

// Put stores answer under the key for question and userID. Failures are
// logged and never returned.
func (c *QueryCache) Put(ctx context.Context, question, userID, answer string) {
	key, err := c.Key(ctx, question, userID)
	if err != nil {
		c.logger.Warn(ctx, "cache key derivation failed, answer not cached", zap.Error(err))
		c.record(ctx, "put", "error")
		return
	}
	if err := c.backend.Set(ctx, key, answer, c.ttl); err != nil {
		c.logger.Warn(ctx, "cache write failed",
			zap.String("backend", c.backend.Name()),
			zap.Error(err),
		)
		c.record(ctx, "put", "error")
		return
	}
	c.record(ctx, "put", "success")
}

// Backend returns the underlying store.
func (c *QueryCache) Backend() Backend {
	return c.backend
}

// Health reports the backend's health.
func (c *QueryCache) Health(ctx context.Context) error {
	return c.backend.Health(ctx)
}

// Close closes the backend.
func (c *QueryCache) Close() error {
	return c.backend.Close()
}

func (c *QueryCache) record(ctx context.Context, op, result string) {
	if c.requests == nil {
		return
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", c.backend.Name()),
		attribute.String("op", op),
		attribute.String("result", result),
	))
}
