// Package search answers ask and needs requests: need extraction, multi-need
// aggregation, card summaries, and the action plan.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/aggregate"
	"github.com/hyperjump/tasuke/internal/generate"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/retrieval"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// NeedExtractor returns the needs in a story. It must not fail.
type NeedExtractor interface {
	Extract(ctx context.Context, story string) models.NeedsResult
}

// Writer produces the user-facing text for a set of results.
type Writer interface {
	CardSummaries(ctx context.Context, story string, candidates []models.Candidate) map[string]string
	ActionPlan(ctx context.Context, story string, grouped models.GroupedResults) string
}

// Engine runs the ask and needs flows.
type Engine struct {
	needs      NeedExtractor
	aggregator *aggregate.Aggregator
	writer     Writer
	options    aggregate.Options
	logger     *zap.Logger
}

// NewEngine creates an engine. options supplies the fanout settings that a request does
// not override (PerNeedLimit, Parallel) and the defaults used by Needs.
func NewEngine(needs NeedExtractor, agg *aggregate.Aggregator, writer Writer, options aggregate.Options, logger *zap.Logger) *Engine {
	return &Engine{
		needs:      needs,
		aggregator: agg,
		writer:     writer,
		options:    options,
		logger:     utils.OrNop(logger),
	}
}

// displayLimit is the per-group cap for an ask: top_results, at least 3, at most 5.
func displayLimit(topResults int) int {
	n := topResults
	if n < 3 {
		n = 3
	}
	if n > 5 {
		n = 5
	}
	return n
}

// Ask extracts needs from the story, retrieves and groups candidates, summarizes each
// distinct resource, and writes an action plan.
func (e *Engine) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	story := strings.TrimSpace(req.Query)
	if story == "" {
		return &models.AskResponse{
			GroupedResults: models.GroupedResults{},
			Needs:          []models.Need{},
		}, nil
	}

	extracted := e.needs.Extract(ctx, story)

	opts := e.options
	opts.FullTopK = req.TopK
	opts.PerNeedTopK = req.TopK
	opts.MaxCandidates = max(req.TopK, req.TopResults)
	opts.GroupedTopK = displayLimit(req.TopResults)
	opts.Retrieve = models.RetrieveOptions{
		Namespace: req.Namespace,
		Filter:    retrieval.BuildFilter(req.City, req.County, req.ZipCode, req.Language, req.FreeOnly),
	}

	grouped := aggregate.DedupeGroups(e.aggregator.Aggregate(ctx, story, extracted.Needs, opts))
	resp := &models.AskResponse{
		GroupedResults: grouped,
		Counts:         models.Counts{TotalResults: grouped.Total(), Needs: len(grouped)},
		Needs:          extracted.Needs,
		Confidence:     extracted.Confidence,
	}
	if resp.Needs == nil {
		resp.Needs = []models.Need{}
	}

	if resp.Counts.TotalResults == 0 {
		e.logger.Info("no matches after fanout", zap.Int("needs", len(extracted.Needs)))
		resp.Took = millis(time.Since(start))
		return resp, nil
	}

	summaries := e.writer.CardSummaries(ctx, story, uniqueCandidates(grouped))
	for gi := range grouped {
		for ci := range grouped[gi].Candidates {
			c := &grouped[gi].Candidates[ci]
			if key := generate.SummaryKey(*c); key != "" {
				c.ModelSummary = summaries[key]
			}
		}
	}

	resp.ActionPlan = e.writer.ActionPlan(ctx, story, grouped)
	resp.Took = millis(time.Since(start))
	e.logger.Debug("ask answered",
		zap.Int("needs", len(extracted.Needs)),
		zap.Int("groups", len(grouped)),
		zap.Int("results", resp.Counts.TotalResults),
		zap.Float64("took_ms", resp.Took),
	)
	return resp, nil
}

// Needs returns the needs in the story together with the flat candidate list.
func (e *Engine) Needs(ctx context.Context, story string) *models.NeedsResponse {
	story = strings.TrimSpace(story)
	if story == "" {
		return &models.NeedsResponse{Needs: []models.Need{}, Candidates: []models.Candidate{}}
	}
	extracted := e.needs.Extract(ctx, story)
	resp := &models.NeedsResponse{
		Needs:      extracted.Needs,
		Confidence: extracted.Confidence,
		Candidates: e.aggregator.Collect(ctx, story, extracted.Needs, e.options),
	}
	if resp.Needs == nil {
		resp.Needs = []models.Need{}
	}
	return resp
}

// uniqueCandidates lists grouped candidates once each, in group order. Candidates
// without a key are always kept.
func uniqueCandidates(grouped models.GroupedResults) []models.Candidate {
	seen := make(map[string]bool)
	var out []models.Candidate
	for _, grp := range grouped {
		for _, c := range grp.Candidates {
			key := generate.SummaryKey(c)
			if key != "" {
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			out = append(out, c)
		}
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
