// Package embedding turns resource text and queries into vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/tasuke/internal/llm"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted by New.
const (
	ProviderHash   = "hash"
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
)

// Options configures New.
type Options struct {
	Provider   string
	ModelPath  string
	Model      string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	// Client is required for the openai provider.
	Client *llm.Client
}

// New builds the embedder for opts.Provider, wrapped in an LRU cache when CacheSize > 0.
func New(opts Options) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch opts.Provider {
	case "", ProviderHash:
		e = NewHashEmbedder(opts.Dimensions)
	case ProviderONNX:
		e, err = NewONNXEmbedder(opts.ModelPath, opts.Dimensions, opts.MaxTokens)
	case ProviderOpenAI:
		if opts.Client == nil {
			return nil, fmt.Errorf("openai embedder requires an API client")
		}
		e = NewOpenAIEmbedder(opts.Client, opts.Model, opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		e = NewCached(e, opts.CacheSize)
	}
	return e, nil
}

// embedEach calls embed once per text.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
