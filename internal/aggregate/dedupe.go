package aggregate

import "github.com/hyperjump/tasuke/internal/models"

// DedupeGroups keeps each resource in exactly one group: the one where it scored highest,
// with ties going to the earlier group. Groups left empty are dropped.
func DedupeGroups(groups models.GroupedResults) models.GroupedResults {
	type winner struct {
		score float64
		group int
	}
	best := make(map[string]winner)
	for gi, g := range groups {
		for _, c := range g.Candidates {
			key := candidateKey(c)
			w, ok := best[key]
			if !ok || c.Score > w.score {
				best[key] = winner{score: c.Score, group: gi}
			}
		}
	}

	out := models.GroupedResults{}
	for gi, g := range groups {
		var kept []models.Candidate
		seen := make(map[string]struct{})
		for _, c := range g.Candidates {
			key := candidateKey(c)
			if best[key].group != gi {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, c)
		}
		if len(kept) > 0 {
			out = append(out, models.Group{Need: g.Need, Candidates: kept})
		}
	}
	return out
}
