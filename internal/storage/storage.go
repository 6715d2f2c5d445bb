// Package storage defines the persistence interface for community resources.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tasuke/internal/models"
)

// ErrNotFound is returned when a resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Stats holds catalogue counters.
type Stats struct {
	Total    int64 `json:"total"`
	Reviewed int64 `json:"reviewed_count"`
	Dirty    int64 `json:"dirty_count"`
}

// Store defines resource persistence operations.
type Store interface {
	// Resource operations
	UpsertResource(ctx context.Context, r *models.Resource) error
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	GetResources(ctx context.Context, ids []string) (map[string]*models.Resource, error)
	DeleteResource(ctx context.Context, id string) error
	ListResources(ctx context.Context, offset, limit int) ([]*models.Resource, error)
	ListIDs(ctx context.Context) ([]string, error)

	// Review progress
	SetReviewed(ctx context.Context, id string, reviewed bool) error
	MarkDirty(ctx context.Context, ids ...string) error
	DirtyIDs(ctx context.Context) ([]string, error)
	ClearDirty(ctx context.Context, ids ...string) error

	// Stats
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
