package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/tasuke/internal/llm"
	"github.com/hyperjump/tasuke/internal/metrics"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

const openAIBatchSize = 64

// OpenAIEmbedder embeds text through an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *llm.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder returns an embedder using client and model. dimensions is the
// expected vector size; 0 means the model default of 1536.
func NewOpenAIEmbedder(client *llm.Client, model string, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIEmbedder{client: client, model: model, dimensions: dimensions}
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of up to 64.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		end := min(start+openAIBatchSize, len(texts))
		vecs, err := e.client.Embed(ctx, e.model, texts[start:end])
		if err != nil {
			metrics.RecordLLMCall("embeddings", "error")
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		metrics.RecordLLMCall("embeddings", "ok")
		for _, v := range vecs {
			if len(v) != e.dimensions {
				return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(v), e.dimensions)
			}
			utils.NormalizeL2(v)
			out = append(out, v)
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
