package aggregate

import (
	"sort"

	"github.com/hyperjump/tasuke/internal/models"
)

type entry struct {
	identity string
	name     string
	score    float64
	needs    map[string]struct{}
	hit      models.Hit
	seq      int
}

// Bucket accumulates hits keyed by identity for a single aggregation.
// It is not safe for concurrent use.
type Bucket struct {
	entries map[string]*entry
	order   []*entry
}

// NewBucket returns an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{entries: make(map[string]*entry)}
}

// Add merges hit into the bucket, tagging it with need when need is non-empty.
// It reports false when the hit has no identity and was dropped.
func (b *Bucket) Add(hit models.Hit, need string) bool {
	id, ok := Identity(hit)
	if !ok {
		return false
	}
	score := HitScore(hit)

	e, seen := b.entries[id]
	if !seen {
		e = &entry{
			identity: id,
			name:     DisplayName(hit),
			score:    score,
			needs:    make(map[string]struct{}),
			hit:      copyHit(hit),
			seq:      len(b.order),
		}
		if need != "" {
			e.needs[need] = struct{}{}
		}
		b.entries[id] = e
		b.order = append(b.order, e)
		return true
	}

	if e.name == "" {
		e.name = DisplayName(hit)
	}
	if need != "" {
		e.needs[need] = struct{}{}
	}
	// Ties go to the later sighting.
	if score >= e.score {
		e.score = score
		e.hit = copyHit(hit)
	}
	return true
}

// Len returns the number of distinct identities.
func (b *Bucket) Len() int {
	return len(b.order)
}

func (e *entry) candidate() models.Candidate {
	needs := make([]string, 0, len(e.needs))
	for n := range e.needs {
		needs = append(needs, n)
	}
	sort.Strings(needs)

	md := e.hit.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return models.Candidate{
		ID:           e.hit.ID,
		ServiceID:    e.identity,
		Name:         e.name,
		Score:        e.score,
		MatchedNeeds: needs,
		Metadata:     md,
	}
}

func copyHit(h models.Hit) models.Hit {
	out := models.Hit{ID: h.ID, Score: h.Score}
	if h.Metadata != nil {
		out.Metadata = make(map[string]any, len(h.Metadata))
		for k, v := range h.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
