package admin

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/indexer"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
)

type fakeReindexer struct {
	calls  []bool
	result indexer.ReindexResult
	err    error
}

func (f *fakeReindexer) Reindex(_ context.Context, onlyDirty bool) (indexer.ReindexResult, error) {
	f.calls = append(f.calls, onlyDirty)
	return f.result, f.err
}

func newService(t *testing.T, token string) (*Service, *storage.SQLiteStorage, *fakeReindexer) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ri := &fakeReindexer{result: indexer.ReindexResult{Upserted: 2, Errors: 1}}
	svc := NewService(store, ri, Config{
		Token:    token,
		DocsPath: filepath.Join(dir, "prepared_documents.jsonl"),
		MetaPath: filepath.Join(dir, "prepared_metadata.jsonl"),
	}, zap.NewNop())
	return svc, store, ri
}

func seed(t *testing.T, store storage.Store, resources ...*models.Resource) {
	t.Helper()
	for _, r := range resources {
		require.NoError(t, store.UpsertResource(context.Background(), r))
	}
}

func TestRequireToken(t *testing.T) {
	svc, _, _ := newService(t, "s3cret")
	assert.NoError(t, svc.RequireToken("s3cret"))
	assert.ErrorIs(t, svc.RequireToken("wrong"), ErrUnauthorized)
	assert.ErrorIs(t, svc.RequireToken(""), ErrUnauthorized)

	open, _, _ := newService(t, "")
	assert.ErrorIs(t, open.RequireToken(""), ErrUnauthorized, "unset token must reject everything")
}

func TestRecord(t *testing.T) {
	svc, store, _ := newService(t, "tok")
	ctx := context.Background()

	_, err := svc.Record(ctx, 0)
	assert.ErrorIs(t, err, ErrEmpty)

	seed(t, store,
		&models.Resource{ID: "b", Text: "", Metadata: map[string]any{
			"resource_name": "Rent Relief",
			"location":      map[string]any{"city": "Shelbyville", "zip_code": "12345"},
			"languages":     "English, Spanish",
		}},
		&models.Resource{ID: "a", Text: "Pantry text", Reviewed: true},
	)

	rec, err := svc.Record(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ID)
	assert.True(t, rec.Reviewed)
	assert.Equal(t, 2, rec.Total)
	assert.Equal(t, "Pantry text", rec.Document.Text)

	rec, err = svc.Record(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Index, "index is clamped")
	assert.Equal(t, "b", rec.ID)
	assert.Equal(t, unknown, rec.Document.Text)
	assert.Equal(t, "Shelbyville", rec.Metadata["city"])
	assert.Equal(t, "12345", rec.Metadata["zip_code"])
	assert.Equal(t, unknown, rec.Metadata["phone"])
	assert.Equal(t, []any{"English", "Spanish"}, rec.Metadata["languages"])
	assert.Equal(t, []any{}, rec.Metadata["categories"])

	rec, err = svc.Record(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Index)
}

func TestUpdate(t *testing.T) {
	svc, store, _ := newService(t, "tok")
	ctx := context.Background()
	seed(t, store, &models.Resource{ID: "a", Namespace: "ns1", Text: "old", Reviewed: true})

	_, err := svc.Update(ctx, UpdateRequest{ID: " "})
	assert.ErrorIs(t, err, ErrMissingID)

	res, err := svc.Update(ctx, UpdateRequest{
		ID:       "a",
		Text:     "  new text  ",
		Metadata: map[string]any{"resource_name": "Pantry"},
	})
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{OK: true, ID: "a", DirtyCount: 1, ReviewedCount: 1}, res)

	got, err := store.GetResource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new text", got.Text)
	assert.Equal(t, "ns1", got.Namespace)
	assert.Equal(t, "a", got.Metadata["id"])
	assert.True(t, got.Reviewed, "reviewed is never cleared by an update")
	assert.True(t, got.Dirty)

	res, err = svc.Update(ctx, UpdateRequest{ID: "new", Text: "fresh", Reviewed: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.ReviewedCount)
	assert.Equal(t, int64(2), res.DirtyCount)
}

func TestSaveAndSummary(t *testing.T) {
	svc, store, _ := newService(t, "tok")
	ctx := context.Background()
	seed(t, store,
		&models.Resource{ID: "a", Text: "one", Dirty: true},
		&models.Resource{ID: "b", Text: "two", Reviewed: true},
	)

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Total)
	assert.Equal(t, int64(1), sum.ReviewedCount)
	assert.Equal(t, int64(1), sum.DirtyCount)

	res, err := svc.Save(ctx)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Count)

	docs, order, err := storage.ReadJSONL(sum.DocsPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, "two", docs["b"]["text"])
}

func TestUpsert(t *testing.T) {
	svc, _, ri := newService(t, "tok")
	res, err := svc.Upsert(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{OK: true, Upserted: 2, Errors: 1}, res)
	assert.Equal(t, []bool{true}, ri.calls)

	ri.err = errors.New("boom")
	_, err = svc.Upsert(context.Background(), false)
	assert.Error(t, err)
}
