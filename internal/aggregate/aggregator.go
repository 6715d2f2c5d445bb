package aggregate

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tasuke/internal/metrics"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// storyContextRunes bounds the story excerpt appended to each per-need query.
const storyContextRunes = 200

// Retriever runs one similarity query against the resource catalogue.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, opts models.RetrieveOptions) ([]models.Hit, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, topK int, opts models.RetrieveOptions) ([]models.Hit, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, topK int, opts models.RetrieveOptions) ([]models.Hit, error) {
	return f(ctx, query, topK, opts)
}

// Options controls fanout sizes and caps. Zero fields take their defaults.
type Options struct {
	FullTopK      int
	PerNeedTopK   int
	PerNeedLimit  int
	MaxCandidates int
	GroupedTopK   int
	Retrieve      models.RetrieveOptions
	// Parallel issues retrieval calls concurrently. Results are merged in the same
	// order as the sequential path.
	Parallel bool
}

// DefaultOptions returns the default fanout options.
func DefaultOptions() Options {
	return Options{
		FullTopK:      10,
		PerNeedTopK:   10,
		PerNeedLimit:  3,
		MaxCandidates: 50,
		GroupedTopK:   5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FullTopK <= 0 {
		o.FullTopK = d.FullTopK
	}
	if o.PerNeedTopK <= 0 {
		o.PerNeedTopK = d.PerNeedTopK
	}
	if o.PerNeedLimit <= 0 {
		o.PerNeedLimit = d.PerNeedLimit
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.GroupedTopK <= 0 {
		o.GroupedTopK = d.GroupedTopK
	}
	return o
}

// Aggregator fans a story out into retrieval calls and merges the results.
type Aggregator struct {
	retriever Retriever
	logger    *zap.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// NewAggregator returns an Aggregator that queries r.
func NewAggregator(r Retriever, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{retriever: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = utils.OrNop(a.logger)
	return a
}

// call is one planned retrieval: the full story (need == "") or one need.
type call struct {
	kind  string
	query string
	topK  int
	need  string
}

// Aggregate returns candidates grouped by need slug. A blank story yields an empty result
// without any retrieval. Without needs, the top GroupedTopK candidates go under "general".
func (a *Aggregator) Aggregate(ctx context.Context, story string, needs []models.Need, opts Options) models.GroupedResults {
	opts = opts.withDefaults()
	if strings.TrimSpace(story) == "" {
		return models.GroupedResults{}
	}
	candidates := a.Collect(ctx, story, needs, opts)
	if len(needs) == 0 {
		return generalGroup(candidates, opts.GroupedTopK)
	}
	return GroupByNeed(candidates, needs, opts.GroupedTopK)
}

// Collect runs the fanout and returns the finalized, score-ordered candidate list.
func (a *Aggregator) Collect(ctx context.Context, story string, needs []models.Need, opts Options) []models.Candidate {
	opts = opts.withDefaults()
	story = strings.TrimSpace(story)
	if story == "" {
		return []models.Candidate{}
	}

	calls := planCalls(story, needs, opts)
	results := a.run(ctx, calls, opts)

	bucket := NewBucket()
	for i, c := range calls {
		for _, h := range results[i] {
			if !bucket.Add(h, c.need) {
				metrics.RecordDroppedHit()
				a.logger.Debug("dropping hit without identity", zap.String("query_kind", c.kind), zap.String("hit_id", h.ID))
			}
		}
	}

	out := Finalize(bucket, opts.MaxCandidates)
	metrics.RecordCandidates(len(out))
	a.logger.Debug("aggregated candidates",
		zap.Int("calls", len(calls)),
		zap.Int("distinct", bucket.Len()),
		zap.Int("candidates", len(out)),
	)
	return out
}

// planCalls lists retrieval calls in merge order: the full story, then each usable need.
// Needs are capped to PerNeedLimit before blank queries are skipped.
func planCalls(story string, needs []models.Need, opts Options) []call {
	calls := []call{{kind: "story", query: story, topK: opts.FullTopK}}

	if len(needs) > opts.PerNeedLimit {
		needs = needs[:opts.PerNeedLimit]
	}
	excerpt := utils.Prefix(utils.CollapseWhitespace(story), storyContextRunes)
	for _, n := range needs {
		q := strings.TrimSpace(n.Query)
		if q == "" {
			continue
		}
		if excerpt != "" {
			q = q + " Context: " + excerpt
		}
		calls = append(calls, call{
			kind:  "need",
			query: q,
			topK:  opts.PerNeedTopK,
			need:  strings.TrimSpace(n.Slug),
		})
	}
	return calls
}

func (a *Aggregator) run(ctx context.Context, calls []call, opts Options) [][]models.Hit {
	results := make([][]models.Hit, len(calls))
	if !opts.Parallel {
		for i, c := range calls {
			results[i] = a.retrieve(ctx, c, opts.Retrieve)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[i] = a.retrieve(gctx, c, opts.Retrieve)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// retrieve runs one call. Errors become an empty hit list.
func (a *Aggregator) retrieve(ctx context.Context, c call, ro models.RetrieveOptions) []models.Hit {
	start := time.Now()
	hits, err := a.retriever.Retrieve(ctx, c.query, c.topK, ro)
	metrics.RecordRetrieval(c.kind, time.Since(start), err)
	if err != nil {
		fields := []zap.Field{zap.String("query_kind", c.kind), zap.String("need", c.need), zap.Error(err)}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			a.logger.Info("retrieval cancelled", fields...)
		} else {
			a.logger.Warn("retrieval failed", fields...)
		}
		return nil
	}
	return hits
}
