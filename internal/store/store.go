// Package store is the durable metadata store collaborator (§6.5):
// functionId -> {project, active version, package digest, package path,
// env vars}, and projectId -> network policy. Trimmed down from a
// sprawling MetadataStore (functions, versions, aliases, invocation logs,
// async queues, event bus, RBAC, tenants, marketplace, workflows...) to
// the two lookups this engine actually performs; every other surface
// belonged to an HTTP control plane that is explicitly out of scope
// (§1 Non-goals: administrative UIs, metadata CRUD surface).
package store

import (
	"context"

	"github.com/emberrun/sandbox/internal/domain"
)

// MetadataStore is the durable function-metadata collaborator. PostgresStore
// implements it; internal/engine depends on its own narrower
// engine.MetadataStore interface (just GetFunction) rather than this one, so
// that package isn't coupled to Postgres.
type MetadataStore interface {
	Close() error
	Ping(ctx context.Context) error

	SaveFunction(ctx context.Context, fn *domain.Function) error
	GetFunction(ctx context.Context, id string) (*domain.Function, error)
	DeleteFunction(ctx context.Context, id string) error
	ListFunctions(ctx context.Context) ([]*domain.Function, error)

	GetPolicy(ctx context.Context, projectID string) (domain.NetworkPolicy, error)
	SetPolicy(ctx context.Context, projectID string, policy domain.NetworkPolicy) error
}

// Store is a thin wrapper kept for symmetry with the source's cmd-level
// wiring; it exists so cmd/sandboxd can hold one handle and close
// it on shutdown without reaching into PostgresStore directly.
type Store struct {
	MetadataStore
}

// NewStore wraps meta.
func NewStore(meta MetadataStore) *Store {
	return &Store{MetadataStore: meta}
}
