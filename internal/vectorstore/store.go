// Package vectorstore defines the vector index manager contract: named
// indexes holding fixed-dimension vectors, partitioned into namespaces that
// isolate one topic, document or answer set each.
package vectorstore

import (
	"context"

	"studybot/internal/schema"
)

// Store is the interface for managing vector indexes and their namespaces,
// writing records and running similarity searches.
type Store interface {
	// EnsureIndex creates the described index if it does not exist. When the
	// index already exists, its dimension and metric are validated against
	// the descriptor and a mismatch fails fast rather than at write time.
	EnsureIndex(ctx context.Context, desc schema.IndexDescriptor) error

	// EnsureNamespace creates the namespace within the index if absent.
	EnsureNamespace(ctx context.Context, index, namespace string) error

	// ListNamespaces returns the index's current namespaces.
	ListNamespaces(ctx context.Context, index string) ([]string, error)

	// NamespaceExists reports whether the namespace exists in the index.
	NamespaceExists(ctx context.Context, index, namespace string) (bool, error)

	// Insert writes all records into (index, namespace) in one batched call.
	Insert(ctx context.Context, index, namespace string, records []schema.IndexedRecord) error

	// Search returns up to topK matches for the vector within (index,
	// namespace), ranked by the index's metric, best match first. An absent
	// index or namespace yields schema.ErrIndexNotFound or
	// schema.ErrNamespaceNotFound.
	Search(ctx context.Context, index, namespace string, vector []float32, topK int) ([]schema.Match, error)
}
