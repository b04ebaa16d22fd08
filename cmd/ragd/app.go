package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/ragd/internal/cache"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/generator"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/qa"
	"github.com/fyrsmithlabs/ragd/internal/reranker"
	"github.com/fyrsmithlabs/ragd/internal/retriever"
	"github.com/fyrsmithlabs/ragd/internal/search"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/services"
	"github.com/fyrsmithlabs/ragd/internal/store"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"go.uber.org/zap"
)

// app holds the wired dependencies of one ragd process.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *logging.Logger
	telemetry  *telemetry.Telemetry
	registry   services.Registry
	ingester   *ingest.Service

	closers []func(context.Context) error
}

// newApp loads configuration and builds every service. When stderrLogs is
// set logs go to stderr so stdout stays free for command output or MCP.
func newApp(ctx context.Context, flags *globalFlags, stderrLogs bool) (_ *app, err error) {
	configPath := flags.configPath
	if configPath == "" {
		dir, err := config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}
	cfg, err := config.LoadWithDotEnv(configPath, flags.envFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, err
	}
	logCfg.Output.Stderr = stderrLogs
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &app{cfg: cfg, configPath: configPath, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version), logger)
	if err != nil {
		return nil, err
	}
	a.onClose(a.telemetry.Shutdown)
	if lp := a.telemetry.LoggerProvider(); lp != nil {
		bridged, err := logging.NewLogger(logCfg, lp)
		if err != nil {
			return nil, fmt.Errorf("initializing otel logger: %w", err)
		}
		logger, a.logger = bridged, bridged
	}

	st, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.onClose(func(context.Context) error { return st.Close() })

	embedder, err := embeddings.FromConfig(cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.onClose(func(context.Context) error { return embedder.Close() })

	index, err := vectorstore.New(ctx, cfg.VectorStore, st, embedder.Dimension(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	a.onClose(func(context.Context) error { return index.Close() })

	keywords, err := search.FromConfig(cfg.Search, logger)
	if err != nil {
		return nil, fmt.Errorf("opening keyword index: %w", err)
	}
	if keywords != nil {
		a.onClose(func(context.Context) error { return keywords.Close() })
	}

	queryCache, err := cache.FromConfig(ctx, cfg.Cache, st, logger)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}
	a.onClose(func(context.Context) error { return queryCache.Close() })

	ingestSvc, err := newIngestService(cfg, st, index, embedder, keywords, logger)
	if err != nil {
		return nil, err
	}

	rr, err := reranker.FromConfig(cfg.Reranker, logger)
	if err != nil {
		return nil, fmt.Errorf("creating reranker: %w", err)
	}
	gen, err := generator.FromConfig(cfg.Generator, logger)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	qaSvc, err := qa.New(qa.Deps{
		Embedder:  embedder,
		Retriever: retriever.New(st, index, cfg.Retrieval, logger),
		Reranker:  rr,
		Generator: gen,
		Cache:     queryCache,
	}, cfg.Reranker.ScoreThreshold, logger)
	if err != nil {
		return nil, err
	}

	docs, err := services.NewDocuments(st, keywords, logger)
	if err != nil {
		return nil, err
	}

	a.ingester = ingestSvc
	a.registry = services.NewRegistry(services.Options{
		Ingest:      ingestSvc,
		QA:          qaSvc,
		Documents:   docs,
		Cache:       queryCache,
		VectorIndex: index,
	})

	logger.Info(ctx, "ragd initialized",
		zap.String("vectorstore", index.Name()),
		zap.String("cache", queryCache.Backend().Name()),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("reranker", cfg.Reranker.Provider),
		zap.Bool("keyword_index", keywords != nil),
		zap.Bool("redact_secrets", cfg.Ingestion.RedactSecrets),
	)
	return a, nil
}

func newIngestService(
	cfg *config.Config,
	st *store.Store,
	index vectorstore.Index,
	embedder *embeddings.Embedder,
	keywords *search.Index,
	logger *logging.Logger,
) (*ingest.Service, error) {
	ch, err := chunker.FromConfig(cfg.Chunking, cfg.Embeddings.Model, logger)
	if err != nil {
		return nil, err
	}

	deps := ingest.Deps{
		Store:     st,
		Index:     index,
		Extractor: extract.NewRegistry(),
		Chunker:   ch,
		Embedder:  embedder,
	}
	if keywords != nil {
		deps.Keywords = keywords
	}
	if cfg.Ingestion.RedactSecrets {
		allowlist, err := secrets.LoadAllowlist(cfg.Ingestion.AllowlistPath)
		if err != nil {
			return nil, fmt.Errorf("loading secrets allowlist: %w", err)
		}
		scrubber, err := secrets.NewScrubber(allowlist)
		if err != nil {
			return nil, fmt.Errorf("creating secrets scrubber: %w", err)
		}
		deps.Redactor = scrubber
	}
	return ingest.New(deps, cfg.Ingestion, logger)
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "errors during shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
