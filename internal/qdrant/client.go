// Package qdrant wraps the official Qdrant gRPC client with retries, request
// timeouts and logging, exposing only what the vector store needs.
package qdrant

import "context"

// Client is the subset of Qdrant used by the vector store.
type Client interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert writes points and waits until they are persisted.
	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error)

	Health(ctx context.Context) error
	Close() error
}

// Point is a vector with a UUID id and a JSON-like payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	Point
	Score float32
}
