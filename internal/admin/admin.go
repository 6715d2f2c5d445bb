// Package admin implements the resource review workflow: browse records by position,
// edit them, export the datasets and push edits into the search indices.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/indexer"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
	"github.com/hyperjump/tasuke/pkg/utils"
)

var (
	// ErrUnauthorized is returned when the admin token is unset or does not match.
	ErrUnauthorized = errors.New("admin token missing or invalid")
	// ErrEmpty is returned when a record is requested from an empty catalogue.
	ErrEmpty = errors.New("no resources")
	// ErrMissingID is returned by Update when the payload has no id.
	ErrMissingID = errors.New("id required")
)

// Reindexer re-embeds stored resources.
type Reindexer interface {
	Reindex(ctx context.Context, onlyDirty bool) (indexer.ReindexResult, error)
}

// Service exposes the admin operations.
type Service struct {
	store     storage.Store
	reindexer Reindexer
	token     string
	docsPath  string
	metaPath  string
	logger    *zap.Logger
}

// Config holds the admin token and the dataset export paths.
type Config struct {
	Token    string
	DocsPath string
	MetaPath string
}

// NewService returns an admin service.
func NewService(store storage.Store, reindexer Reindexer, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		reindexer: reindexer,
		token:     cfg.Token,
		docsPath:  cfg.DocsPath,
		metaPath:  cfg.MetaPath,
		logger:    utils.OrNop(logger),
	}
}

// RequireToken returns ErrUnauthorized unless an admin token is configured and token matches it.
func (s *Service) RequireToken(token string) error {
	if s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Summary describes the catalogue and where it is exported.
type Summary struct {
	Total         int64  `json:"total"`
	ReviewedCount int64  `json:"reviewed_count"`
	DirtyCount    int64  `json:"dirty_count"`
	DocsPath      string `json:"docs_path"`
	MetaPath      string `json:"meta_path"`
}

// Summary returns catalogue counters.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Total:         st.Total,
		ReviewedCount: st.Reviewed,
		DirtyCount:    st.Dirty,
		DocsPath:      s.docsPath,
		MetaPath:      s.metaPath,
	}, nil
}

// Document is the editable text of a record.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Record is one resource prepared for review.
type Record struct {
	Index    int            `json:"index"`
	ID       string         `json:"id"`
	Reviewed bool           `json:"reviewed"`
	Dirty    bool           `json:"dirty"`
	Document Document       `json:"document"`
	Metadata map[string]any `json:"metadata"`
	Total    int            `json:"total"`
}

// Record returns the resource at index in ID order. The index is clamped to the
// catalogue. Metadata is flattened and empty fields read "Unknown".
func (s *Service) Record(ctx context.Context, index int) (*Record, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	index = max(0, min(index, len(ids)-1))
	r, err := s.store.GetResource(ctx, ids[index])
	if err != nil {
		return nil, err
	}
	text := r.Text
	if strings.TrimSpace(text) == "" {
		text = unknown
	}
	return &Record{
		Index:    index,
		ID:       r.ID,
		Reviewed: r.Reviewed,
		Dirty:    r.Dirty,
		Document: Document{ID: r.ID, Text: text},
		Metadata: withPlaceholders(FlattenMetadata(r.Metadata)),
		Total:    len(ids),
	}, nil
}

// UpdateRequest is an edit submitted from the review UI.
type UpdateRequest struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Reviewed bool           `json:"reviewed"`
}

// UpdateResult reports the catalogue counters after an update.
type UpdateResult struct {
	OK            bool   `json:"ok"`
	ID            string `json:"id"`
	DirtyCount    int64  `json:"dirty_count"`
	ReviewedCount int64  `json:"reviewed_count"`
}

// Update replaces a record's text and metadata and marks it dirty. Reviewed can only be
// set, never cleared, through an update. The indices are not touched until Upsert.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return UpdateResult{}, ErrMissingID
	}
	s.logger.Info("Updating record", zap.String("id", id))

	r, err := s.store.GetResource(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		r, err = nil, nil
	}
	if err != nil {
		return UpdateResult{}, err
	}
	md := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md["id"] = id

	updated := models.Resource{ID: id}
	if r != nil {
		updated = *r
	}
	updated.Text = strings.TrimSpace(req.Text)
	updated.Metadata = md
	updated.Reviewed = updated.Reviewed || req.Reviewed
	updated.Dirty = true
	if err := s.store.UpsertResource(ctx, &updated); err != nil {
		return UpdateResult{}, err
	}

	st, err := s.store.Stats(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{OK: true, ID: id, DirtyCount: st.Dirty, ReviewedCount: st.Reviewed}, nil
}

// SaveResult reports where the datasets were written.
type SaveResult struct {
	OK       bool   `json:"ok"`
	Count    int    `json:"count"`
	DocsPath string `json:"docs_path"`
	MetaPath string `json:"meta_path"`
}

// Save exports the catalogue to the documents and metadata JSONL files.
func (s *Service) Save(ctx context.Context) (SaveResult, error) {
	s.logger.Info("Saving datasets", zap.String("docs", s.docsPath), zap.String("meta", s.metaPath))
	n, err := storage.ExportJSONL(ctx, s.store, s.docsPath, s.metaPath)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{OK: true, Count: n, DocsPath: s.docsPath, MetaPath: s.metaPath}, nil
}

// UpsertResult reports a re-embedding run.
type UpsertResult struct {
	OK       bool `json:"ok"`
	Upserted int  `json:"upserted"`
	Skipped  int  `json:"skipped"`
	Errors   int  `json:"errors"`
}

// Upsert re-embeds the dirty records, or every record when onlyDirty is false.
func (s *Service) Upsert(ctx context.Context, onlyDirty bool) (UpsertResult, error) {
	res, err := s.reindexer.Reindex(ctx, onlyDirty)
	if err != nil {
		return UpsertResult{}, err
	}
	s.logger.Info("Upserted records",
		zap.Bool("only_dirty", onlyDirty),
		zap.Int("upserted", res.Upserted),
		zap.Int("errors", res.Errors),
	)
	return UpsertResult{OK: true, Upserted: res.Upserted, Skipped: res.Skipped, Errors: res.Errors}, nil
}
