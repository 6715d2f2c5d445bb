package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/extract"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/resourceid"
	"github.com/hyperjump/tasuke/internal/storage"
)

// ImportResult reports how many records an import indexed and skipped.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportJSONL indexes the prepared documents and metadata datasets. Records are joined
// by id; ids present in only one file are imported with empty text or metadata.
// Ids are processed in ascending order.
func (idx *Indexer) ImportJSONL(ctx context.Context, docsPath, metaPath string) (ImportResult, error) {
	docs, _, err := storage.ReadJSONL(docsPath)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read documents: %w", err)
	}
	metas, _, err := storage.ReadJSONL(metaPath)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read metadata: %w", err)
	}

	seen := make(map[string]struct{}, len(docs)+len(metas))
	ids := make([]string, 0, len(docs)+len(metas))
	for _, set := range []map[string]storage.Record{docs, metas} {
		for id := range set {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	var res ImportResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		text, _ := docs[id]["text"].(string)
		md := map[string]any(metas[id])
		if _, err := idx.IndexResource(ctx, &models.ResourceInput{ID: id, Text: text, Metadata: md}); err != nil {
			idx.logger.Error("Failed to import record", zap.String("id", id), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Imported++
	}
	idx.logger.Info("Imported prepared datasets",
		zap.String("docs", docsPath),
		zap.String("meta", metaPath),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// listColumns are spreadsheet columns holding comma-separated lists.
var listColumns = map[string]bool{"categories": true, "languages": true}

// ImportSpreadsheet indexes one resource per row of the first sheet of an .xlsx workbook.
// The header row names the metadata fields. The id comes from an "id" or "resource_id"
// column, else from name, organization and address; the text from a "text" or
// "description" column, else it is composed from the row's fields.
func (idx *Indexer) ImportSpreadsheet(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, err
	}
	defer f.Close()
	rows, err := extract.Table(f, "")
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		in := rowResource(row, filepath.Base(path))
		if in.ID == "" {
			idx.logger.Warn("Skipping row without identity", zap.Int("row", i+2))
			res.Skipped++
			continue
		}
		if _, err := idx.IndexResource(ctx, in); err != nil {
			idx.logger.Error("Failed to import row", zap.Int("row", i+2), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Imported++
	}
	idx.logger.Info("Imported spreadsheet", zap.String("path", path), zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	return res, nil
}

func rowResource(row map[string]string, source string) *models.ResourceInput {
	md := make(map[string]any, len(row)+1)
	for k, v := range row {
		switch {
		case listColumns[k]:
			md[k] = splitList(v)
		case k == "free_or_low_cost":
			b, err := strconv.ParseBool(v)
			md[k] = (err == nil && b) || strings.EqualFold(v, "yes")
		default:
			md[k] = v
		}
	}
	md["source_file"] = source

	id := row["id"]
	if id == "" {
		id = row["resource_id"]
	}
	if id == "" {
		addr := row["full_address"]
		if addr == "" {
			addr = row["street"]
		}
		id = resourceid.FromFields(row["resource_name"], row["organization_name"], addr)
	}

	text := row["text"]
	if text == "" {
		text = row["description"]
	}
	if text == "" {
		text = composeText(row)
	}
	return &models.ResourceInput{ID: id, Text: text, Metadata: md}
}

func splitList(s string) []any {
	var out []any
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// composeText renders the descriptive fields of a row as a document for embedding.
func composeText(row map[string]string) string {
	fields := []struct{ label, key string }{
		{"", "resource_name"},
		{"Provided by", "organization_name"},
		{"Categories", "categories"},
		{"Eligibility", "eligibility"},
		{"Fees", "fees"},
		{"Languages", "languages"},
		{"Address", "full_address"},
		{"City", "city"},
		{"Hours", "hours_notes"},
	}
	var parts []string
	for _, f := range fields {
		v := row[f.key]
		if v == "" {
			continue
		}
		if f.label != "" {
			v = f.label + ": " + v
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ". ")
}

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// ImportFlyer extracts the text of a flyer (PDF, DOCX, XLSX or plain text) and indexes it
// as one resource. The ID is derived from the absolute path so re-importing updates the
// same resource. metadata is merged into the resource metadata; resource_name defaults
// to the file name. Unchanged files (same mtime and size) are skipped.
func (idx *Indexer) ImportFlyer(ctx context.Context, path string, metadata map[string]any) (*models.Resource, error) {
	if idx.extractor == nil {
		return nil, fmt.Errorf("no extractor configured")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	id := resourceid.FromPath(absPath)
	if r, ok := idx.unchanged(ctx, id, absPath, info); ok {
		idx.logger.Debug("Skipping unchanged flyer", zap.String("path", absPath))
		return r, nil
	}
	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	md := make(map[string]any, len(metadata)+5)
	for k, v := range metadata {
		md[k] = v
	}
	if s, _ := md["resource_name"].(string); s == "" {
		md["resource_name"] = flyerName(absPath)
	}
	md["source_file"] = filepath.Base(absPath)
	md[metaKeySourcePath] = absPath
	md[metaKeySourceMtime] = strconv.FormatInt(info.ModTime().UnixNano(), 10)
	md[metaKeySourceSize] = strconv.FormatInt(info.Size(), 10)

	r, err := idx.IndexResource(ctx, &models.ResourceInput{ID: id, Text: text, Metadata: md})
	if err != nil {
		return nil, err
	}
	idx.logger.Debug("Flyer imported", zap.String("path", absPath), zap.String("id", id))
	return r, nil
}

// flyerName turns "eastside_food-pantry.pdf" into "eastside food pantry".
func flyerName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}

// unchanged returns the stored resource when it was imported from absPath with the same
// mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, id, absPath string, info os.FileInfo) (*models.Resource, bool) {
	r, err := idx.store.GetResource(ctx, id)
	if err != nil || r.Metadata[metaKeySourcePath] != absPath {
		return nil, false
	}
	// Stored as strings: UnixNano exceeds float64 precision after a JSON round trip.
	if metadataInt64(r.Metadata, metaKeySourceMtime) != info.ModTime().UnixNano() ||
		metadataInt64(r.Metadata, metaKeySourceSize) != info.Size() {
		return nil, false
	}
	return r, true
}

func metadataInt64(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// ImportFlyers walks dir recursively and imports every file the extractor supports.
// It returns the number of flyers imported and the first error encountered, if any.
func (idx *Indexer) ImportFlyers(ctx context.Context, dir string) (n int, err error) {
	if idx.extractor == nil {
		return 0, fmt.Errorf("no extractor configured")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !idx.extractor.Supported(filepath.Ext(path)) || filepath.Ext(path) == "" {
			return nil
		}
		// Resolve symlinks so only regular files are imported
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, err := idx.ImportFlyer(ctx, path, nil); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}
