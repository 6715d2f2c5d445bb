// Package aggregate merges hits from one broad story query and several narrow per-need
// queries into a ranked candidate list, then partitions it into need groups.
package aggregate

import (
	"strings"

	"github.com/hyperjump/tasuke/internal/models"
)

var (
	identityKeys = []string{"service_id", "resource_id", "id"}
	nameKeys     = []string{"resource_name", "name", "title", "organization_name"}
)

// Identity returns the stable identity of a hit: the first non-empty of metadata
// service_id, resource_id, id, then the hit id. ok is false when none is present.
func Identity(h models.Hit) (string, bool) {
	for _, k := range identityKeys {
		if s, ok := models.Stringify(h.Metadata[k]); ok {
			return s, true
		}
	}
	if h.ID != "" {
		return h.ID, true
	}
	return "", false
}

// DisplayName returns the first non-blank trimmed name field of the hit metadata, or "".
func DisplayName(h models.Hit) string {
	for _, k := range nameKeys {
		s, ok := models.Stringify(h.Metadata[k])
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// HitScore returns the hit score as a finite float; anything else is 0.
func HitScore(h models.Hit) float64 {
	return models.CoerceFloat(h.Score)
}
