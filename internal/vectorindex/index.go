// Package vectorindex talks to the vector index holding one point per
// problem. Qdrant is the production backend; Memory is an exact in-process
// index with the same replace-by-id semantics.
package vectorindex

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when the addressed collection does not
// exist yet.
var ErrCollectionNotFound = errors.New("collection not found")

// Payload is the free-form metadata stored next to a vector.
type Payload map[string]any

// Clone returns a shallow copy of p. A nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Point is one stored vector.
type Point struct {
	ID      int64
	Vector  []float64
	Payload Payload
}

// ScoredPoint is a query hit, ordered by descending Score.
type ScoredPoint struct {
	ID      int64
	Score   float64
	Payload Payload
}

// Index is a single collection of fixed-dimension vectors.
type Index interface {
	// Retrieve returns the payloads of the ids that exist. Missing ids are
	// absent from the map.
	Retrieve(ctx context.Context, ids []int64) (map[int64]Payload, error)
	// Upsert inserts or entirely replaces each point by id.
	Upsert(ctx context.Context, points []Point) error
	// Query returns up to limit nearest points by cosine similarity with
	// only the named payload fields. An empty field list returns the full
	// payload.
	Query(ctx context.Context, vector []float64, limit int, fields []string) ([]ScoredPoint, error)
	// Dimension reports the vector size fixed at collection creation.
	Dimension(ctx context.Context) (int, error)
}

// VectorUpdater replaces vectors of existing points without touching their
// payloads.
type VectorUpdater interface {
	UpdateVectors(ctx context.Context, points []Point) error
}

// CollectionManager creates the collection when absent and fails with
// errors.ErrDimensionMismatch when it exists with another size.
type CollectionManager interface {
	EnsureCollection(ctx context.Context, dimension int) error
}

// Backend is implemented by both Qdrant and Memory.
type Backend interface {
	Index
	VectorUpdater
	CollectionManager
}
