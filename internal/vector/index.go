// Package vector stores resource embeddings and answers nearest-neighbour queries.
package vector

import "context"

// Index defines vector storage and similarity search keyed by resource id.
type Index interface {
	// Upsert stores vectors, replacing any existing vector with the same id.
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k ids by descending similarity. When accept is non-nil,
	// ids it rejects are skipped before the k limit is applied.
	Search(ctx context.Context, query []float32, k int, accept func(id string) bool) ([]Result, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Result is a single vector search hit.
type Result struct {
	ID    string
	Score float64 // inner product; cosine similarity for normalized vectors
}
