// Package retrieval answers similarity queries against the resource catalogue by fusing
// vector and keyword search, restricted by namespace and metadata filter.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/embedding"
	"github.com/hyperjump/tasuke/internal/keyword"
	"github.com/hyperjump/tasuke/internal/metrics"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
	"github.com/hyperjump/tasuke/internal/vector"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// Error is returned when a retrieval call fails.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retrieve %q: %v", utils.Truncate(e.Query, 80), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config controls fusion weights and the default namespace.
type Config struct {
	Namespace      string
	KeywordWeight  float64
	SemanticWeight float64
	// Oversample multiplies topK for each source before fusion.
	Oversample int
	// Fuzziness is passed to keyword search.
	Fuzziness int
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:      models.DefaultNamespace,
		KeywordWeight:  0.3,
		SemanticWeight: 0.7,
		Oversample:     2,
		Fuzziness:      1,
	}
}

// Retriever runs hybrid search. It satisfies aggregate.Retriever.
type Retriever struct {
	store    storage.Store
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index
	cfg      Config
	logger   *zap.Logger
}

// New returns a Retriever. keywords may be nil to use vector search only.
func New(store storage.Store, embedder embedding.Embedder, vectors vector.Index, keywords keyword.Index, cfg Config, logger *zap.Logger) *Retriever {
	if cfg.Namespace == "" {
		cfg.Namespace = models.DefaultNamespace
	}
	if cfg.Oversample < 1 {
		cfg.Oversample = 1
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		cfg:      cfg,
		logger:   utils.OrNop(logger),
	}
}

// resourceCache memoizes store lookups for the duration of one Retrieve call.
type resourceCache struct {
	store storage.Store
	mu    sync.Mutex
	byID  map[string]*models.Resource
	err   error
}

func (c *resourceCache) get(ctx context.Context, id string) *models.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byID[id]; ok {
		return r
	}
	r, err := c.store.GetResource(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && c.err == nil {
		c.err = err
	}
	c.byID[id] = r
	return r
}

// NamespaceOf returns the namespace of r, treating an unset namespace as the default.
func NamespaceOf(r *models.Resource) string {
	if r.Namespace == "" {
		return models.DefaultNamespace
	}
	return r.Namespace
}

// Retrieve returns up to topK hits for query, ordered by fused score.
// Hit metadata is the stored resource metadata plus its "text".
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, opts models.RetrieveOptions) ([]models.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	ns := opts.Namespace
	if ns == "" {
		ns = r.cfg.Namespace
	}
	cache := &resourceCache{store: r.store, byID: make(map[string]*models.Resource)}
	accept := func(id string) bool {
		res := cache.get(ctx, id)
		return res != nil && NamespaceOf(res) == ns && Matches(opts.Filter, res.Metadata)
	}
	limit := topK * r.cfg.Oversample

	var (
		keywordResults  []keyword.Result
		semanticResults []vector.Result
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
	)

	if r.keywords != nil && r.cfg.KeywordWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			results, err := r.keywords.Search(ctx, query, limit, &keyword.SearchOptions{Fuzziness: r.cfg.Fuzziness})
			metrics.RecordRetrieval("keyword", time.Since(start), err)
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			kept := results[:0]
			for _, res := range results {
				if accept(res.ID) {
					kept = append(kept, res)
				}
			}
			keywordResults = kept
		}()
	}

	if r.cfg.SemanticWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			queryEmbedding, err := r.embedder.Embed(ctx, query)
			if err != nil {
				metrics.RecordRetrieval("vector", time.Since(start), err)
				errChan <- fmt.Errorf("embedding failed: %w", err)
				return
			}
			results, err := r.vectors.Search(ctx, queryEmbedding, limit, accept)
			metrics.RecordRetrieval("vector", time.Since(start), err)
			if err != nil {
				errChan <- fmt.Errorf("vector search failed: %w", err)
				return
			}
			semanticResults = results
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, &Error{Query: query, Err: err}
		}
	}
	if cache.err != nil {
		return nil, &Error{Query: query, Err: cache.err}
	}

	fused := Fuse(NormalizeKeywordScores(keywordResults), SemanticScores(semanticResults), r.cfg.KeywordWeight, r.cfg.SemanticWeight)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	hits := make([]models.Hit, 0, len(fused))
	for _, f := range fused {
		res := cache.get(ctx, f.ID)
		if res == nil {
			continue
		}
		hits = append(hits, models.Hit{ID: res.ID, Score: f.Score, Metadata: hitMetadata(res)})
	}
	r.logger.Debug("Retrieved",
		zap.String("namespace", ns),
		zap.Int("keyword", len(keywordResults)),
		zap.Int("semantic", len(semanticResults)),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

func hitMetadata(r *models.Resource) map[string]any {
	md := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md["text"] = r.Text
	return md
}
