package aggregate

import (
	"sort"

	"github.com/hyperjump/tasuke/internal/models"
)

// Finalize flattens the bucket into candidates ordered by score descending, with ties in
// first-sighting order, truncated to maxCandidates. A negative maxCandidates keeps all.
func Finalize(b *Bucket, maxCandidates int) []models.Candidate {
	entries := make([]*entry, len(b.order))
	copy(entries, b.order)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].seq < entries[j].seq
	})
	if maxCandidates >= 0 && len(entries) > maxCandidates {
		entries = entries[:maxCandidates]
	}

	out := make([]models.Candidate, len(entries))
	for i, e := range entries {
		out[i] = e.candidate()
	}
	return out
}
