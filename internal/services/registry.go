package services

import (
	"context"

	"github.com/fyrsmithlabs/ragd/internal/cache"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/qa"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Ingester stores an uploaded document.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	SupportedTypes() []string
	MaxDocumentSize() int64
}

// Answerer answers a question for a user.
type Answerer interface {
	Answer(ctx context.Context, question, userID string) (string, error)
}

var (
	_ Ingester = (*ingest.Service)(nil)
	_ Answerer = (*qa.Service)(nil)
)

// Registry provides access to all ragd services.
type Registry interface {
	Ingest() Ingester
	QA() Answerer
	Documents() *Documents
	Cache() *cache.QueryCache
	VectorIndex() vectorstore.Index
	Health(ctx context.Context) HealthReport
}

// Options configures the registry with service instances.
type Options struct {
	Ingest      Ingester
	QA          Answerer
	Documents   *Documents
	Cache       *cache.QueryCache
	VectorIndex vectorstore.Index
}

type registry struct {
	ingest      Ingester
	qa          Answerer
	documents   *Documents
	cache       *cache.QueryCache
	vectorIndex vectorstore.Index
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		ingest:      opts.Ingest,
		qa:          opts.QA,
		documents:   opts.Documents,
		cache:       opts.Cache,
		vectorIndex: opts.VectorIndex,
	}
}

func (r *registry) Ingest() Ingester               { return r.ingest }
func (r *registry) QA() Answerer                   { return r.qa }
func (r *registry) Documents() *Documents          { return r.documents }
func (r *registry) Cache() *cache.QueryCache       { return r.cache }
func (r *registry) VectorIndex() vectorstore.Index { return r.vectorIndex }
