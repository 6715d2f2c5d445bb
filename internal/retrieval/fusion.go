package retrieval

import (
	"sort"

	"github.com/hyperjump/tasuke/internal/keyword"
	"github.com/hyperjump/tasuke/internal/vector"
)

// FusedResult holds a resource ID and its fused keyword/semantic scores.
type FusedResult struct {
	ID            string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// SemanticScores returns vector scores keyed by ID. Inner products of normalized
// vectors are already cosine similarities.
func SemanticScores(results []vector.Result) map[string]float64 {
	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.ID] = r.Score
	}
	return scores
}

// Fuse merges keyword and semantic score maps with weights and returns results by
// descending fused score, ties broken by ID.
func Fuse(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []FusedResult {
	byID := make(map[string]*FusedResult, len(keywordScores)+len(semanticScores))
	for id, score := range keywordScores {
		byID[id] = &FusedResult{ID: id, KeywordScore: score}
	}
	for id, score := range semanticScores {
		if r, ok := byID[id]; ok {
			r.SemanticScore = score
		} else {
			byID[id] = &FusedResult{ID: id, SemanticScore: score}
		}
	}
	results := make([]FusedResult, 0, len(byID))
	for _, r := range byID {
		r.Score = keywordWeight*r.KeywordScore + semanticWeight*r.SemanticScore
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
