package embedding

import (
	"context"

	"github.com/hyperjump/tasuke/pkg/utils"
)

// HashEmbedder is a deterministic bag-of-words embedder using feature hashing.
// Texts sharing words get positive similarity, which is enough for local catalogues
// and tests without a model.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder with the given dimensions (default 384).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized hashed word counts of text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, e.dimensions)
	for _, w := range Words(text) {
		h := Hash64(w)
		sign := float32(1)
		if h&(1<<63) != 0 {
			sign = -1
		}
		v[h%uint64(e.dimensions)] += sign
	}
	utils.NormalizeL2(v)
	return v, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
