package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("cache backend closed")

// Backend is a key-value store with expiring entries.
type Backend interface {
	// Get returns the value for key. A missing or expired key is ("", false, nil).
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl. Backends with bucket-level
	// expiry ignore ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Name() string
	Health(ctx context.Context) error
	Close() error
}

// NoopStore never holds anything. It backs provider "none".
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (NoopStore) Set(context.Context, string, string, time.Duration) error { return nil }

func (NoopStore) Name() string { return "none" }

func (NoopStore) Health(context.Context) error { return nil }

func (NoopStore) Close() error { return nil }
