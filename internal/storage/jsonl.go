package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/tasuke/internal/models"
)

// Record is one line of a prepared JSONL dataset.
type Record map[string]any

// RecordID returns the record's "id", falling back to "resource_id".
func RecordID(rec Record) string {
	if s, ok := models.Stringify(rec["id"]); ok {
		return s
	}
	s, _ := models.Stringify(rec["resource_id"])
	return s
}

// ReadJSONL reads a JSONL file into records keyed by RecordID, plus the ids in file order.
// A missing file yields no records. Blank lines and lines without an id are skipped;
// a later line with the same id replaces the earlier one.
func ReadJSONL(path string) (map[string]Record, []string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	out := make(map[string]Record)
	var order []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		id := RecordID(rec)
		if id == "" {
			continue
		}
		if _, seen := out[id]; !seen {
			order = append(order, id)
		}
		out[id] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, order, nil
}

// WriteJSONL writes rows to path, one JSON object per line. The file is replaced atomically.
func WriteJSONL(path string, rows []Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ExportJSONL writes every stored resource to the documents and metadata datasets,
// in ID order. Each metadata row carries the resource id.
func ExportJSONL(ctx context.Context, s Store, docsPath, metaPath string) (int, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	byID, err := s.GetResources(ctx, ids)
	if err != nil {
		return 0, err
	}
	docs := make([]Record, 0, len(ids))
	metas := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			continue
		}
		docs = append(docs, Record{"id": id, "text": r.Text})
		md := make(Record, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			md[k] = v
		}
		md["id"] = id
		metas = append(metas, md)
	}
	if err := WriteJSONL(docsPath, docs); err != nil {
		return 0, fmt.Errorf("write documents: %w", err)
	}
	if err := WriteJSONL(metaPath, metas); err != nil {
		return 0, fmt.Errorf("write metadata: %w", err)
	}
	return len(docs), nil
}
