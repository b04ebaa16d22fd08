package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSConfig configures a JetStream key-value backend.
type NATSConfig struct {
	URL    string
	Bucket string
	// TTL applies to the whole bucket. JetStream expires entries by bucket
	// max age, so the ttl passed to Set is ignored.
	TTL time.Duration
}

// NATSStore keeps answers in a JetStream key-value bucket so every ragd
// instance connected to the same cluster shares them.
type NATSStore struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	bucket string
	logger *logging.Logger
	// onClose releases resources owned alongside the connection, such as
	// an embedded server.
	onClose func()
}

// NewNATSStore connects to cfg.URL and creates or updates the bucket.
func NewNATSStore(ctx context.Context, cfg NATSConfig, logger *logging.Logger) (*NATSStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("nats bucket is required")
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("ragd-cache"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "ragd question answering cache",
		TTL:         cfg.TTL,
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating key-value bucket %q: %w", cfg.Bucket, err)
	}

	logger.Info(ctx, "nats cache ready",
		zap.String("bucket", cfg.Bucket),
		zap.Duration("ttl", cfg.TTL),
	)
	return &NATSStore{nc: nc, kv: kv, bucket: cfg.Bucket, logger: logger.Named("cache.nats")}, nil
}

// natsKey maps a cache key onto the key-value key alphabet, which has no ':'.
func natsKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func (s *NATSStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, natsKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("nats get: %w", err)
	}
	return string(entry.Value()), true, nil
}

func (s *NATSStore) Set(ctx context.Context, key, value string, _ time.Duration) error {
	if _, err := s.kv.Put(ctx, natsKey(key), []byte(value)); err != nil {
		return fmt.Errorf("nats put: %w", err)
	}
	return nil
}

func (s *NATSStore) Name() string { return "nats" }

// Health checks the connection and the bucket.
func (s *NATSStore) Health(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("nats not connected: %s", s.nc.Status())
	}
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("nats bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSStore) Close() error {
	err := s.nc.Drain()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
