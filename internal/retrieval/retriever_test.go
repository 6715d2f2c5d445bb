package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/embedding"
	"github.com/hyperjump/tasuke/internal/keyword"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
	"github.com/hyperjump/tasuke/internal/vector"
)

type fixture struct {
	store    *storage.SQLiteStorage
	embedder embedding.Embedder
	vectors  *vector.MemoryIndex
	keywords *keyword.BleveIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	emb := embedding.NewHashEmbedder(128)
	vec, err := vector.NewMemoryIndex(emb.Dimensions())
	require.NoError(t, err)
	kw, err := keyword.NewMemoryBleveIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	resources := []*models.Resource{
		{
			ID: "pantry", Namespace: models.DefaultNamespace,
			Text: "Food pantry with free groceries and hot meals",
			Metadata: map[string]any{
				"resource_name": "Eastside Food Pantry", "city": "Springfield",
				"languages": []any{"English", "Spanish"}, "free_or_low_cost": true,
			},
		},
		{
			ID: "rent", Namespace: models.DefaultNamespace,
			Text: "Emergency rent assistance and eviction prevention",
			Metadata: map[string]any{
				"resource_name": "Rent Relief Fund", "city": "Shelbyville",
				"languages": []any{"English"},
			},
		},
		{
			ID: "pantry-other", Namespace: "other",
			Text:     "Food pantry with free groceries",
			Metadata: map[string]any{"resource_name": "Other Pantry", "city": "Springfield"},
		},
	}
	for _, r := range resources {
		require.NoError(t, store.UpsertResource(ctx, r))
		v, err := emb.Embed(ctx, r.Text)
		require.NoError(t, err)
		require.NoError(t, vec.Upsert(ctx, []string{r.ID}, [][]float32{v}))
		require.NoError(t, kw.Index(ctx, r))
	}
	return &fixture{store: store, embedder: emb, vectors: vec, keywords: kw}
}

func (f *fixture) retriever(cfg Config) *Retriever {
	return New(f.store, f.embedder, f.vectors, f.keywords, cfg, zap.NewNop())
}

func TestRetriever_RanksAndHydrates(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(DefaultConfig())

	hits, err := r.Retrieve(context.Background(), "food pantry groceries", 5, models.RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "pantry", hits[0].ID)
	assert.Equal(t, "Eastside Food Pantry", hits[0].Metadata["resource_name"])
	assert.Equal(t, "Food pantry with free groceries and hot meals", hits[0].Metadata["text"])
	for _, h := range hits {
		assert.NotEqual(t, "pantry-other", h.ID, "other namespace must not leak")
	}
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestRetriever_Namespace(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(DefaultConfig())

	hits, err := r.Retrieve(context.Background(), "food pantry", 5, models.RetrieveOptions{Namespace: "other"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pantry-other", hits[0].ID)
}

func TestRetriever_Filter(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(DefaultConfig())

	hits, err := r.Retrieve(context.Background(), "food pantry", 5, models.RetrieveOptions{
		Filter: BuildFilter("Shelbyville", "", "", "", false),
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "rent", hits[0].ID)

	hits, err = r.Retrieve(context.Background(), "help", 5, models.RetrieveOptions{
		Filter: BuildFilter("", "", "", "Spanish", true),
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pantry", hits[0].ID)
}

func TestRetriever_TopK(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(DefaultConfig())

	hits, err := r.Retrieve(context.Background(), "food", 1, models.RetrieveOptions{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = r.Retrieve(context.Background(), "food", 0, models.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetriever_VectorOnly(t *testing.T) {
	f := newFixture(t)
	r := New(f.store, f.embedder, f.vectors, nil, DefaultConfig(), nil)

	hits, err := r.Retrieve(context.Background(), "rent eviction", 2, models.RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "rent", hits[0].ID)
}

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}

func TestRetriever_Error(t *testing.T) {
	f := newFixture(t)
	r := New(f.store, failingEmbedder{f.embedder}, f.vectors, f.keywords, DefaultConfig(), nil)

	_, err := r.Retrieve(context.Background(), "food", 3, models.RetrieveOptions{})
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "food", rerr.Query)
	assert.Contains(t, err.Error(), "model offline")
}
