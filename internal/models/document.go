// Package models defines core data structures for resources, retrieval hits, needs, and grouped results.
package models

import "time"

// DefaultNamespace is the namespace used when none is configured.
const DefaultNamespace = "__default__"

// Resource is a community resource record as stored in the catalogue.
// Text is the prepared document used for embedding; Metadata holds the structured
// fields (resource_name, organization_name, contact, location, categories, ...).
type Resource struct {
	ID        string         `json:"id" db:"id"`
	Namespace string         `json:"namespace,omitempty" db:"namespace"`
	Text      string         `json:"text" db:"text"`
	Metadata  map[string]any `json:"metadata" db:"metadata"`
	Reviewed  bool           `json:"reviewed" db:"reviewed"`
	Dirty     bool           `json:"dirty" db:"dirty"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Name returns the best human-readable name for the resource.
func (r *Resource) Name() string {
	for _, k := range []string{"resource_name", "name", "organization_name"} {
		if s, ok := r.Metadata[k].(string); ok && s != "" {
			return s
		}
	}
	return r.ID
}

// ResourceInput is the input for creating or updating a resource.
type ResourceInput struct {
	ID        string         `json:"id,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
