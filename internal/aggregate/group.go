package aggregate

import (
	"strings"

	"github.com/hyperjump/tasuke/internal/models"
)

// GeneralGroup is the group key used when a story has no usable needs.
const GeneralGroup = "general"

const defaultGroupCap = 5

// GroupByNeed partitions score-ordered candidates into one group per distinct need slug.
// Candidates join every known group they matched, up to groupCap per group. Candidates
// that matched no known group then fill the first group with room, in slug order.
// Every known slug gets a key. Without usable slugs the top candidates go under "general".
func GroupByNeed(candidates []models.Candidate, needs []models.Need, groupCap int) models.GroupedResults {
	if groupCap == 0 {
		groupCap = defaultGroupCap
	}
	if groupCap < 1 {
		groupCap = 1
	}

	slugs := distinctSlugs(needs)
	if len(slugs) == 0 {
		return generalGroup(candidates, groupCap)
	}

	index := make(map[string]int, len(slugs))
	groups := make(models.GroupedResults, len(slugs))
	members := make([]map[string]struct{}, len(slugs))
	for i, s := range slugs {
		index[s] = i
		groups[i] = models.Group{Need: s, Candidates: []models.Candidate{}}
		members[i] = make(map[string]struct{})
	}

	place := func(i int, c models.Candidate) bool {
		if len(groups[i].Candidates) >= groupCap {
			return false
		}
		key := candidateKey(c)
		if _, dup := members[i][key]; dup {
			return false
		}
		members[i][key] = struct{}{}
		groups[i].Candidates = append(groups[i].Candidates, c)
		return true
	}

	var unmatched []models.Candidate
	for _, c := range candidates {
		known := false
		for _, need := range c.MatchedNeeds {
			i, ok := index[need]
			if !ok {
				continue
			}
			known = true
			place(i, c)
		}
		if !known {
			unmatched = append(unmatched, c)
		}
	}

	for _, c := range unmatched {
		for i := range groups {
			if place(i, c) {
				break
			}
		}
	}
	return groups
}

func distinctSlugs(needs []models.Need) []string {
	var slugs []string
	seen := make(map[string]struct{})
	for _, n := range needs {
		s := strings.TrimSpace(n.Slug)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		slugs = append(slugs, s)
	}
	return slugs
}

func generalGroup(candidates []models.Candidate, limit int) models.GroupedResults {
	if len(candidates) == 0 {
		return models.GroupedResults{}
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	return models.GroupedResults{{Need: GeneralGroup, Candidates: out}}
}

func candidateKey(c models.Candidate) string {
	if c.ServiceID != "" {
		return c.ServiceID
	}
	return c.ID
}
