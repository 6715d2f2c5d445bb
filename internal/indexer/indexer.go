// Package indexer writes resources into storage and the vector and keyword indices,
// and imports them from prepared datasets, spreadsheets and flyers.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tasuke/internal/embedding"
	"github.com/hyperjump/tasuke/internal/extract"
	"github.com/hyperjump/tasuke/internal/keyword"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
	"github.com/hyperjump/tasuke/internal/vector"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// ErrNoText is returned when a resource has no text to embed.
var ErrNoText = errors.New("resource has no text")

// Indexer indexes resources into storage, keyword index, and vector index.
type Indexer struct {
	store     storage.Store
	embedder  embedding.Embedder
	vectors   vector.Index
	keywords  keyword.Index // optional
	chunker   *Chunker
	extractor *extract.Extractor
	namespace string
	workers   int
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// WithNamespace sets the namespace given to resources that arrive without one.
func WithNamespace(ns string) Option {
	return func(idx *Indexer) {
		if ns != "" {
			idx.namespace = ns
		}
	}
}

// WithChunking sets the word window used to embed long resource text.
func WithChunking(size, overlap int) Option {
	return func(idx *Indexer) { idx.chunker = NewChunker(size, overlap) }
}

// WithWorkers bounds how many resources Reindex embeds concurrently.
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// NewIndexer creates an indexer. keywords may be nil; extractor may be nil, in which
// case flyers cannot be imported.
func NewIndexer(
	store storage.Store,
	embedder embedding.Embedder,
	vectors vector.Index,
	keywords keyword.Index,
	extractor *extract.Extractor,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		keywords:  keywords,
		chunker:   NewChunker(256, 32),
		extractor: extractor,
		namespace: models.DefaultNamespace,
		workers:   4,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexResource stores the resource and indexes it. A missing ID gets a random UUID.
// The reviewed flag of an existing resource is kept and the dirty flag is cleared.
// A resource with no text is stored but left out of the vector index.
func (idx *Indexer) IndexResource(ctx context.Context, in *models.ResourceInput) (*models.Resource, error) {
	r := &models.Resource{
		ID:        in.ID,
		Namespace: in.Namespace,
		Text:      in.Text,
		Metadata:  in.Metadata,
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Namespace == "" {
		r.Namespace = idx.namespace
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	if existing, err := idx.store.GetResource(ctx, r.ID); err == nil {
		r.Reviewed = existing.Reviewed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load resource: %w", err)
	}

	if err := idx.store.UpsertResource(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to store resource: %w", err)
	}
	if err := idx.index(ctx, r); err != nil {
		if errors.Is(err, ErrNoText) {
			idx.logger.Debug("Resource stored without embedding", zap.String("id", r.ID))
			return r, nil
		}
		return nil, err
	}
	idx.logger.Debug("Resource indexed", zap.String("id", r.ID))
	return r, nil
}

// index embeds r and writes it to the vector and keyword indices.
func (idx *Indexer) index(ctx context.Context, r *models.Resource) error {
	if idx.keywords != nil {
		if err := idx.keywords.Index(ctx, r); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	chunks := idx.chunker.Chunk(r.Text)
	if len(chunks) == 0 {
		if err := idx.vectors.Remove(ctx, []string{r.ID}); err != nil {
			return fmt.Errorf("failed to delete from vector index: %w", err)
		}
		return ErrNoText
	}
	vec, err := idx.embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}
	if err := idx.vectors.Upsert(ctx, []string{r.ID}, [][]float32{vec}); err != nil {
		return fmt.Errorf("failed to index vector: %w", err)
	}
	return nil
}

// embed returns one vector for the chunks: the normalized mean of the chunk embeddings.
func (idx *Indexer) embed(ctx context.Context, chunks []string) ([]float32, error) {
	if len(chunks) == 1 {
		return idx.embedder.Embed(ctx, chunks[0])
	}
	vecs, err := idx.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return utils.MeanPool(vecs, idx.embedder.Dimensions())
}

// DeleteResource removes a resource from all indices and storage.
func (idx *Indexer) DeleteResource(ctx context.Context, id string) error {
	if idx.keywords != nil {
		if err := idx.keywords.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if err := idx.vectors.Remove(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := idx.store.DeleteResource(ctx, id); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	idx.logger.Debug("Resource deleted", zap.String("id", id))
	return nil
}

// ReindexResult reports the outcome of Reindex.
type ReindexResult struct {
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Reindex re-embeds stored resources: only the dirty ones when onlyDirty is set,
// otherwise all of them. Resources without text are skipped. Per-resource failures
// are logged and counted, not returned. When onlyDirty is set the dirty flags of
// the targeted resources are cleared afterwards.
func (idx *Indexer) Reindex(ctx context.Context, onlyDirty bool) (ReindexResult, error) {
	var (
		ids []string
		err error
	)
	if onlyDirty {
		ids, err = idx.store.DirtyIDs(ctx)
	} else {
		ids, err = idx.store.ListIDs(ctx)
	}
	if err != nil {
		return ReindexResult{}, fmt.Errorf("list resources: %w", err)
	}
	idx.logger.Info("Reindexing", zap.Int("count", len(ids)), zap.Bool("only_dirty", onlyDirty))

	var upserted, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := idx.store.GetResource(gctx, id)
			if err == nil {
				err = idx.index(gctx, r)
			}
			switch {
			case err == nil:
				upserted.Add(1)
			case errors.Is(err, ErrNoText):
				idx.logger.Warn("Skipping resource without text", zap.String("id", id))
				skipped.Add(1)
			default:
				idx.logger.Error("Failed to reindex resource", zap.String("id", id), zap.Error(err))
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReindexResult{}, err
	}

	if onlyDirty && len(ids) > 0 {
		if err := idx.store.ClearDirty(ctx, ids...); err != nil {
			return ReindexResult{}, fmt.Errorf("clear dirty flags: %w", err)
		}
	}
	return ReindexResult{
		Upserted: int(upserted.Load()),
		Skipped:  int(skipped.Load()),
		Errors:   int(failed.Load()),
	}, nil
}
