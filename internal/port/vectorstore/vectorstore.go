// Package vectorstore defines the namespace-scoped vector search port.
//
// The namespace is the tenant id. Implementations must scope every read
// and write to it; callers are never trusted to filter by tenant
// themselves.
package vectorstore

import "context"

// Record is one embedded chunk. Immutable once written; re-ingestion
// supersedes it under the same deterministic id.
type Record struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}

// QueryResult is one ranked match from a similarity query.
type QueryResult struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]any
}

// Store is the port interface for the vector similarity service.
type Store interface {
	// Upsert writes records into the tenant namespace in one batch.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns up to topK nearest records within the tenant
	// namespace. filter adds metadata equality conditions on top of the
	// mandatory namespace scoping.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]QueryResult, error)

	// Close releases any resources held by the store.
	Close() error
}
