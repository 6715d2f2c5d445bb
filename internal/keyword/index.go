// Package keyword provides BM25 keyword search over resource names, categories and text.
package keyword

import (
	"context"

	"github.com/hyperjump/tasuke/internal/models"
)

// SearchOptions are optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies matches in the resource and organization name fields.
	NameBoost float64
	// Fuzziness is the maximum edit distance for typo tolerance (0 disables, max 2).
	Fuzziness int
}

// Index defines keyword search operations.
type Index interface {
	Index(ctx context.Context, r *models.Resource) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}
