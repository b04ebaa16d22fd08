package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrConflict is returned when a user already owns a document with the
	// same content hash.
	ErrConflict = errors.New("document already exists for user")

	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrNotOwned is returned when a toggle names a document the user has no
	// link to.
	ErrNotOwned = errors.New("document not found for user")

	// ErrNoDocuments is returned when a toggle names no documents.
	ErrNoDocuments = errors.New("no documents selected")

	// ErrLengthMismatch is returned when chunk texts and embeddings differ in
	// length.
	ErrLengthMismatch = errors.New("chunk and embedding counts differ")
)

// Store is the gorm-backed content store. A Store returned to an InTx
// callback is bound to the transaction.
type Store struct {
	db     *gorm.DB
	logger *logging.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the SQLite database at cfg.Path and
// migrates the schema.
func Open(cfg config.StorageConfig, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	path, err := config.ExpandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(logger.Named("gorm")),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}

	s, err := New(db, logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	s.logger.Info(context.Background(), "content store opened", zap.String("path", path))
	return s, nil
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := db.AutoMigrate(&Document{}, &Chunk{}, &UserDocumentLink{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.Named("store"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func dsn(path string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
	}
	return path + "?" + strings.Join(pragmas, "&")
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on context cancellation.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger, now: s.now})
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isDuplicateKey reports a unique constraint violation. The string check
// covers drivers that do not translate the error.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
